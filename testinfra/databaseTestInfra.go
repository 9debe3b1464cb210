package testinfra

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"shopfloor/persistence"

	"github.com/google/uuid"
)

type TestDatabase struct {
	TestDatabaseName string
	DS               *persistence.DataSourceManager
}

// StartTestDatabase starts an isolated database. It is an in-memory SQLite database by default and a fresh
// MySQL schema when TEST_MYSQL_SERVICE is set, e.g. TEST_MYSQL_SERVICE=root:root@(127.0.0.1:3306)
func StartTestDatabase(baseName string) *TestDatabase {
	if os.Getenv("TEST_MYSQL_SERVICE") != "" {
		return StartMysqlTestDatabase(baseName)
	}
	databaseName := baseName + "_test_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	dbConfig := &persistence.DatabaseConfig{
		DriverType: "sqlite3", DriverArgs: "file:" + databaseName + "?mode=memory&cache=shared&_busy_timeout=5000",
		// a memory database lives as long as its single connection
		MaxOpenConns: 1,
		CallTimeout:  10 * time.Second,
		RetryDelay:   time.Millisecond,
	}
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database connection failed %v\n", err)
	}
	return &TestDatabase{TestDatabaseName: databaseName, DS: ds}
}

func StartMysqlTestDatabase(baseName string) *TestDatabase {
	mysqlSvc := os.Getenv("TEST_MYSQL_SERVICE")
	if mysqlSvc == "" {
		mysqlSvc = "root:root@(127.0.0.1:3306)"
	}
	databaseName := baseName + "_test_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	dbConfig := &persistence.DatabaseConfig{
		DriverType: "mysql", DriverArgs: mysqlSvc + "/" + databaseName + "?charset=utf8mb4&parseTime=True&loc=UTC&timeout=5s",
		CallTimeout: 10 * time.Second,
		RetryDelay:  time.Millisecond,
	}

	// create database (no conflict)
	if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
		log.Fatalf("failed to prepare database %v\n", err)
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	// connect
	if err := ds.Start(); err != nil {
		defer ds.Stop()
		log.Fatalf("database connection failed %v\n", err)
	}

	return &TestDatabase{TestDatabaseName: databaseName, DS: ds}
}

func StopTestDatabase(testDatabase *TestDatabase) {
	if testDatabase == nil || testDatabase.DS == nil {
		return
	}
	if testDatabase.DS.DatabaseConfig.DriverType == "mysql" {
		if db := testDatabase.DS.GormDB(context.Background()); db != nil {
			if err := db.Exec("DROP DATABASE " + testDatabase.TestDatabaseName).Error; err != nil {
				log.Println("failed to drop test database: " + testDatabase.TestDatabaseName)
			} else {
				log.Println("test database " + testDatabase.TestDatabaseName + " dropped")
			}
		}
	}
	// close connection, a memory database vanishes with it
	testDatabase.DS.Stop()
}
