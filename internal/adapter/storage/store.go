package storage

import "github.com/rl1809/bloodbank/internal/port"

// Store is implemented by MemoryStore and SQLAdapter.
type Store interface {
	port.InventoryRepository
	port.RequestRepository
	port.FulfillmentRepository
	port.DonorRepository
	port.UserRepository
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLAdapter)(nil)
)
