package store

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Store interface {
	User() User
	Device() Device
	Pairing() Pairing
	Task() Task
	Telemetry() Telemetry
	Variable() Variable
	Snapshot() Snapshot
	Effect() Effect
	Entity() Entity
	InitialMigration() error
	Close() error
}

type DataStore struct {
	user      User
	device    Device
	pairing   Pairing
	task      Task
	telemetry Telemetry
	variable  Variable
	snapshot  Snapshot
	effect    Effect
	entity    Entity

	db *gorm.DB
}

func NewStore(db *gorm.DB, log logrus.FieldLogger) Store {
	return &DataStore{
		user:      NewUser(db, log),
		device:    NewDevice(db, log),
		pairing:   NewPairing(db, log),
		task:      NewTask(db, log),
		telemetry: NewTelemetry(db, log),
		variable:  NewVariable(db, log),
		snapshot:  NewSnapshot(db, log),
		effect:    NewEffect(db, log),
		entity:    NewEntity(db, log),
		db:        db,
	}
}

func (s *DataStore) User() User           { return s.user }
func (s *DataStore) Device() Device       { return s.device }
func (s *DataStore) Pairing() Pairing     { return s.pairing }
func (s *DataStore) Task() Task           { return s.task }
func (s *DataStore) Telemetry() Telemetry { return s.telemetry }
func (s *DataStore) Variable() Variable   { return s.variable }
func (s *DataStore) Snapshot() Snapshot   { return s.snapshot }
func (s *DataStore) Effect() Effect       { return s.effect }
func (s *DataStore) Entity() Entity       { return s.entity }

func (s *DataStore) InitialMigration() error {
	if err := s.user.InitialMigration(); err != nil {
		return err
	}
	if err := s.device.InitialMigration(); err != nil {
		return err
	}
	if err := s.pairing.InitialMigration(); err != nil {
		return err
	}
	if err := s.task.InitialMigration(); err != nil {
		return err
	}
	if err := s.telemetry.InitialMigration(); err != nil {
		return err
	}
	if err := s.variable.InitialMigration(); err != nil {
		return err
	}
	if err := s.snapshot.InitialMigration(); err != nil {
		return err
	}
	if err := s.effect.InitialMigration(); err != nil {
		return err
	}
	if err := s.entity.InitialMigration(); err != nil {
		return err
	}
	return nil
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
