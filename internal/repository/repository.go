package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
)

type Database struct {
	Pool *pgxpool.Pool
}

func NewDatabase() (*Database, error) {
	connStr := viper.GetString("database.url")
	if connStr == "" {
		connStr = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			viper.GetString("database.username"),
			viper.GetString("database.password"),
			viper.GetString("database.host"),
			viper.GetInt("database.port"),
			viper.GetString("database.name"),
			viper.GetString("database.sslmode"),
		)
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	if schema := viper.GetString("database.schema"); schema != "" {
		config.ConnConfig.RuntimeParams["search_path"] = schema
	}

	maxOpen := viper.GetInt("database.max_open_conns")
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := viper.GetInt("database.max_idle_conns")
	if maxIdle <= 0 {
		maxIdle = 5
	}
	maxLifetime := viper.GetInt("database.conn_max_lifetime")
	if maxLifetime <= 0 {
		maxLifetime = 300
	}
	config.MaxConns = int32(maxOpen)
	config.MinConns = int32(maxIdle)
	config.MaxConnLifetime = time.Duration(maxLifetime) * time.Second

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Database{Pool: pool}, nil
}

func (d *Database) Close() {
	d.Pool.Close()
}
