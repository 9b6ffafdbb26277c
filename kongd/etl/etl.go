// Package etl archives completed journal entries to an external relational
// store (market settlements are not archived) when Settings.ArchiveToKongData is enabled
// (spec.md §6's Settings surface), grounded on the teacher's apiserver
// controllers (db.Where / gorm model queries over jinzhu/gorm) but writing
// rather than serving: one append per terminal journal entry.
package etl

import (
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/logger"
)

var log = logger.Get(logger.SubsystemTags.JRNL)

// ArchivedRequest is the archive row for one terminal journal entry,
// mirroring the teacher's models.Transaction row shape (a thin gorm model
// with an auto-increment ID and queryable business columns).
type ArchivedRequest struct {
	ID        uint64 `gorm:"primary_key"`
	RequestID uint64 `gorm:"unique_index"`
	UserID    string `gorm:"index"`
	Kind      string
	Status    string
	TsNs      uint64
}

// TableName pins the archive table name, matching the teacher's explicit
// table-name overrides in apiserver/models.
func (ArchivedRequest) TableName() string { return "kong_archived_requests" }

// Archiver connects to kong_data's MySQL database via gorm, the same driver
// stack the teacher's apiserver/kasparov use (jinzhu/gorm + mysql dialect).
type Archiver struct {
	db *gorm.DB
}

// Connect opens the archive database and migrates its schema, grounded on
// the teacher's apiserver/database.Connect pattern (dial once, AutoMigrate
// known models, keep the *gorm.DB around for the process lifetime).
func Connect(dsn string) (*Archiver, error) {
	db, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to kong_data archive database")
	}
	if err := db.AutoMigrate(&ArchivedRequest{}).Error; err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating kong_data schema")
	}
	return &Archiver{db: db}, nil
}

// Close releases the underlying database connection.
func (a *Archiver) Close() error {
	return a.db.Close()
}

// ArchiveEntry persists a terminal journal entry. Callers should only
// archive entries whose TerminalStatus has resolved (spec.md §4.7).
func (a *Archiver) ArchiveEntry(e *journal.Entry) error {
	status, ok := e.TerminalStatus()
	if !ok {
		return errors.Errorf("request %d has not reached a terminal status", e.RequestID)
	}
	row := &ArchivedRequest{
		RequestID: e.RequestID,
		UserID:    e.UserID,
		Kind:      string(e.Kind),
		Status:    string(status),
		TsNs:      e.TsNs,
	}
	if err := a.db.Create(row).Error; err != nil {
		return errors.Wrapf(err, "archiving request %d", e.RequestID)
	}
	log.Debugf("archived request %d (%s) to kong_data", e.RequestID, e.Kind)
	return nil
}
