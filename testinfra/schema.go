package testinfra

import (
	"context"
	"log"

	"shopfloor/domain"
	"shopfloor/event"
)

// StartMigratedDatabase starts a test database with the whole service schema.
func StartMigratedDatabase(baseName string) *TestDatabase {
	testDatabase := StartTestDatabase(baseName)
	models := append(domain.Models(), &event.EventRecord{})
	if err := testDatabase.DS.GormDB(context.Background()).AutoMigrate(models...).Error; err != nil {
		StopTestDatabase(testDatabase)
		log.Fatalf("database migration failed %v\n", err)
	}
	return testDatabase
}
