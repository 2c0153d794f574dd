package utils

import (
	"database/sql"

	"ipress-dash/internal/config"

	_ "github.com/lib/pq"
)

func BuildPostgresDSN(c config.Postgres) string {
	dsn := "postgres://" + c.User
	if c.Password != "" {
		dsn += ":" + c.Password
	}
	dsn += "@" + c.Host + ":" + c.Port + "/" + c.DB + "?sslmode=" + c.SSLMode
	return dsn
}

// OpenPostgres：打开连接池，不做连通性检查（由调用方 Ping）
func OpenPostgres(c config.Postgres) (*sql.DB, error) {
	db, err := sql.Open("postgres", BuildPostgresDSN(c))
	if err != nil {
		return nil, err
	}
	if c.MaxOpen > 0 {
		db.SetMaxOpenConns(c.MaxOpen)
	}
	if c.MaxIdle > 0 {
		db.SetMaxIdleConns(c.MaxIdle)
	}
	return db, nil
}
