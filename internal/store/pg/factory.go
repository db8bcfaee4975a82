package pg

import (
	"database/sql"

	"github.com/nextlevelbuilder/agenthub/internal/store"
)

// NewPGStores creates all stores backed by Postgres.
func NewPGStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Channels:   NewPGChannelStore(db),
		Chats:      NewPGChatStore(db),
		Messages:   NewPGMessageStore(db),
		Agents:     NewPGAgentStore(db),
		ChatAgents: NewPGChatAgentStore(db),
	}
}
