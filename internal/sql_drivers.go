package internal

import (
	// database/sql drivers for the watermill SQL publisher.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
