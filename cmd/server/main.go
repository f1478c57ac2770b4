package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83"

	"koursa_back_end/internal/config"
	"koursa_back_end/internal/coordinator"
	"koursa_back_end/internal/database"
	"koursa_back_end/internal/dispatch"
	"koursa_back_end/internal/disputes"
	"koursa_back_end/internal/handlers"
	"koursa_back_end/internal/ledger"
	"koursa_back_end/internal/observer"
	"koursa_back_end/internal/routes"
	"koursa_back_end/internal/store"
	"koursa_back_end/internal/utils"
)

func main() {
	config.Load()

	secret := os.Getenv("STRIPE_SECRET_KEY")
	stripe.Key = secret
	if stripe.Key == "" {
		log.Fatal("❌ Impossible d'initialiser Stripe : clé manquante")
	}
	log.Println("✅ Stripe initialisé")

	database.ConnectDatabases()

	// ✅ Initialiser les prepared statements pour améliorer les performances
	database.InitPreparedStatements()

	// ✅ Pré-chauffer le cache Redis
	warmupRedisCache()

	// Stockage
	trips := store.NewTripStore()
	payments := store.NewPaymentStore()
	disputeStore := store.NewDisputeStore()
	escrows := store.NewEscrowStore()
	users := store.NewUserStore()

	// Ledger de paiement (Stripe en capture différée, verrous Redis)
	locks := ledger.NewRedisLocker(database.Redis)
	pay := ledger.New(payments, ledger.NewStripeProcessor(), locks)

	// Recherche de chauffeur : dispatch Redis + observation des statuts
	disp := dispatch.NewRedisDispatch(database.Redis, trips)
	source := observer.NewRedisSource(database.Redis)
	prompter := coordinator.NewRedisPrompter(database.Redis)
	coord := coordinator.New(disp, pay, trips, source, prompter)

	// Litiges et escrow
	engine := disputes.NewEngine(
		trips, disputeStore, escrows, pay, locks,
		utils.NewEmailNotifier(users),
		disputes.NewRedisOpsQueue(database.Redis),
		disputes.NewRedisStrikes(database.Redis),
	)

	// Balayage de réconciliation : libère les fonds retenus sans litige
	// après 24h
	go engine.Run(context.Background(), 15*time.Minute)

	handlers.Init(coord, pay, engine, disp, trips, disputeStore, escrows)

	r := gin.Default()
	routes.RegisterRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("🚀 Serveur Koursa lancé sur le port", port)
	r.Run(":" + port)
}

// warmupRedisCache pré-chauffe le cache Redis pour éviter la latence du premier appel
func warmupRedisCache() {
	ctx := context.Background()
	if err := database.Redis.Ping(ctx).Err(); err == nil {
		log.Println("✅ Cache Redis pré-chauffé")
	}
}
