package db

import "github.com/ceyewan/seckill/xerrors"

var (
	ErrInvalidConfig           = xerrors.New("db: invalid config")
	ErrMySQLConnectorRequired  = xerrors.New("db: mysql connector is required")
	ErrSQLiteConnectorRequired = xerrors.New("db: sqlite connector is required")
	ErrNotConnected            = xerrors.New("db: connector is not connected")
)
