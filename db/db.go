package db

import (
	"artcache/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var Instance *gorm.DB

func Init() {
	var (
		instance *gorm.DB
		err      error
	)
	conf := &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}
	if config.MYSQL_DSN != "" {
		instance, err = gorm.Open(mysql.Open(config.MYSQL_DSN), conf)
	} else {
		instance, err = gorm.Open(sqlite.Open(config.SQLITE_FILE), conf)
	}
	if err != nil || instance == nil {
		panic(err)
	}
	Instance = instance
}
