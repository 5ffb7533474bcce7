package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/calroth/questboard/internal/database"
	"github.com/calroth/questboard/internal/events"
	"github.com/calroth/questboard/internal/logging"
	"github.com/calroth/questboard/internal/push"
	"github.com/calroth/questboard/internal/schedule"
	"github.com/calroth/questboard/internal/store"
	"github.com/calroth/questboard/internal/websocket"
)

func main() {
	port := os.Getenv("QUESTBOARD_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("QUESTBOARD_DB_PATH")
	if dbPath == "" {
		dbPath = "questboard.db"
	}

	logger := logging.Setup(os.Getenv("QUESTBOARD_LOG_LEVEL"), os.Getenv("QUESTBOARD_LOG_FORMAT"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	resetHour := 0
	if v := os.Getenv("QUESTBOARD_RESET_HOUR"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h < 0 || h > 23 {
			log.Fatalf("invalid QUESTBOARD_RESET_HOUR %q", v)
		}
		resetHour = h
	}

	loc := time.Local
	if tz := os.Getenv("QUESTBOARD_TZ"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			log.Fatalf("invalid QUESTBOARD_TZ %q: %v", tz, err)
		}
	}

	quests := store.NewQuestStore(db)
	rotations := store.NewRotationStore(db)
	exclusions := store.NewExclusionStore(db)
	assignments := store.NewAssignmentStore(db)
	pushSubs := store.NewPushStore(db)

	bus := events.NewBus()

	mat := schedule.NewMaterializer(quests, rotations, exclusions, assignments,
		logger.With("component", "materializer"))

	daily := schedule.NewDaily(mat, exclusions, resetHour, loc,
		logger.With("component", "daily"))

	hub := websocket.NewHub(logger.With("component", "websocket"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	daily.Start(ctx)
	defer daily.Stop()

	go hub.Relay(ctx, bus)

	vapidPublic := os.Getenv("QUESTBOARD_VAPID_PUBLIC_KEY")
	vapidPrivate := os.Getenv("QUESTBOARD_VAPID_PRIVATE_KEY")
	if vapidPublic != "" && vapidPrivate != "" {
		svc := push.NewService(vapidPublic, vapidPrivate)
		notifier := push.NewNotifier(svc, pushSubs, logger.With("component", "push"))
		go notifier.Run(ctx, bus)
	} else {
		logger.Info("push notifications disabled, VAPID keys not configured")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", websocket.Handler(hub))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("questboard running", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
