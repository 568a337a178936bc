package internal

import (
	// database/sql drivers for the watermill sql publisher and listener.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
