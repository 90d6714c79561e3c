package dummydb

import (
	"sync"

	"github.com/trezcool/engage/core/activity"
)

type (
	DB struct {
		activity   *activityTable
		submission *submissionTable
	}

	activityTable struct {
		sync.RWMutex
		table map[activity.Type]map[string]*activity.Activity
	}

	submissionTable struct {
		sync.RWMutex
		table map[string]*activity.Submission
	}
)

func Open() (*DB, error) {
	db := &DB{
		activity:   &activityTable{table: make(map[activity.Type]map[string]*activity.Activity)},
		submission: &submissionTable{table: make(map[string]*activity.Submission)},
	}
	return db, nil
}

// SeedActivities inserts or replaces activities. The admin editors are external; this stands in for them.
func (db *DB) SeedActivities(acts ...activity.Activity) {
	db.activity.Lock()
	defer db.activity.Unlock()
	for i := range acts {
		a := acts[i]
		if db.activity.table[a.Type] == nil {
			db.activity.table[a.Type] = make(map[string]*activity.Activity)
		}
		db.activity.table[a.Type][a.ID] = &a
	}
}
