// Command nakama is built as a Nakama Go runtime plugin:
//
//	go build -buildmode=plugin -trimpath -o ./modules/wordle.so ./cmd/nakama
package main

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/robalobadob/wordle-live/internal/ports/nakama"
)

// InitModule proxies Nakama initialization to the nakama adapter package.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	return nakama.InitModule(ctx, logger, db, nk, initializer)
}

// main is unused in -buildmode=plugin; it lets `go build ./...` compile this package.
func main() {}
