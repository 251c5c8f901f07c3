package storage

import (
	"github.com/gbalchidi/family-emotions-app/storage/database"
	"github.com/gbalchidi/family-emotions-app/storage/mq"
	"github.com/gbalchidi/family-emotions-app/storage/redis"
)

// 统一 init storage 层

func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	if err := mq.Init(); err != nil {
		return err
	}

	return nil
}
