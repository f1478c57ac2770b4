package handlers

import (
	"koursa_back_end/internal/coordinator"
	"koursa_back_end/internal/dispatch"
	"koursa_back_end/internal/disputes"
	"koursa_back_end/internal/ledger"
	"koursa_back_end/internal/store"
)

// Dépendances câblées une fois au démarrage, même logique que les sessions
// globales du package database
var (
	Coord    *coordinator.Coordinator
	Ledger   *ledger.Ledger
	Engine   *disputes.Engine
	Dispatch dispatch.Client

	Trips    *store.TripStore
	Disputes *store.DisputeStore
	Escrows  *store.EscrowStore
)

func Init(c *coordinator.Coordinator, l *ledger.Ledger, e *disputes.Engine, d dispatch.Client, trips *store.TripStore, disp *store.DisputeStore, escr *store.EscrowStore) {
	Coord = c
	Ledger = l
	Engine = e
	Dispatch = d
	Trips = trips
	Disputes = disp
	Escrows = escr
}
