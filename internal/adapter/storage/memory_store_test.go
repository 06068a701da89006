package storage_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rl1809/fitfast/internal/adapter/storage"
	"github.com/rl1809/fitfast/internal/adapter/storage/storagetest"
	"github.com/rl1809/fitfast/internal/port"
)

func TestMemoryStockStore(t *testing.T) {
	suite.Run(t, &storagetest.StockStoreSuite{
		NewStore: func() port.StockStore { return storage.NewMemoryStockStore() },
	})
}
