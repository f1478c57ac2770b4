package database

import (
	"log"
	"sync"

	"github.com/gocql/gocql"
)

var (
	// Prepared statements pour les chemins chauds du protocole de recherche
	stmtGetTripByID       *gocql.Query
	stmtMarkSearching     *gocql.Query
	stmtCancelTrip        *gocql.Query
	stmtUpdateTripPayment *gocql.Query
	stmtMarkCompleted     *gocql.Query

	preparedOnce sync.Once
)

// InitPreparedStatements initialise les prepared statements
func InitPreparedStatements() {
	preparedOnce.Do(func() {
		session, err := GetTripsSession()
		if err != nil {
			log.Printf("⚠️ Impossible d'initialiser les prepared statements: %v", err)
			return
		}

		// Lecture d'une course par ID (chemin le plus fréquent : timeout + observer)
		stmtGetTripByID = session.Query(`SELECT rider_id, driver_id, status, cancelled_by, cancel_reason_code,
			payment_ref, legacy_payment_field, payment_status, estimated_amount, final_amount, currency,
			auto_hold, searching_since, completed_at, created_at
			FROM trips WHERE trip_id = ?`)

		// Passage en recherche avec horodatage serveur (chaque création et relance)
		stmtMarkSearching = session.Query(`UPDATE trips SET status = ?, searching_since = ?, updated_at = ?
			WHERE trip_id = ?`)

		// Annulation avec acteur + code de raison (persisté tel quel pour l'audit)
		stmtCancelTrip = session.Query(`UPDATE trips SET status = ?, cancelled_by = ?, cancel_reason_code = ?,
			updated_at = ? WHERE trip_id = ?`)

		// Mise à jour de l'état de paiement porté par la course
		stmtUpdateTripPayment = session.Query("UPDATE trips SET payment_status = ?, updated_at = ? WHERE trip_id = ?")

		// Clôture de la course (règlement et balayage de réconciliation)
		stmtMarkCompleted = session.Query("UPDATE trips SET status = ?, completed_at = ?, updated_at = ? WHERE trip_id = ?")

		log.Println("✅ Prepared statements initialisés")
	})
}

func GetPreparedGetTripByID() *gocql.Query {
	return stmtGetTripByID
}

func GetPreparedMarkSearching() *gocql.Query {
	return stmtMarkSearching
}

func GetPreparedCancelTrip() *gocql.Query {
	return stmtCancelTrip
}

func GetPreparedUpdateTripPayment() *gocql.Query {
	return stmtUpdateTripPayment
}

func GetPreparedMarkCompleted() *gocql.Query {
	return stmtMarkCompleted
}
