package connector

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ceyewan/seckill/xerrors"
)

// NewSQLite 创建 SQLite 连接器
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (SQLiteConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "sqlite config is nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return newGormConnector("sqlite", cfg.Name,
		func() gorm.Dialector { return sqlite.Open(cfg.Path) },
		func(db *gorm.DB) error {
			// SQLite 单写者，串行化连接避免 database is locked
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxOpenConns(1)
			return nil
		},
		applyOptions(opts),
	), nil
}
