package service

import (
	"github.com/sarida/backend/internal/domain"
)

// DataRepository is re-exported from domain for convenience
type DataRepository = domain.DataRepository
