package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/examguard/examguard/internal/client"
	"github.com/examguard/examguard/internal/config"
	"github.com/examguard/examguard/internal/logger"
	"github.com/examguard/examguard/internal/proctor"
	"github.com/examguard/examguard/internal/session"
)

func main() {
	var (
		serverURL   = flag.String("server", "http://localhost:8080", "ExamGuard server base URL")
		relayURL    = flag.String("relay", "ws://localhost:8080/ws/v1/relay", "Realtime violation relay URL")
		token       = flag.String("token", "", "Student JWT")
		examIDStr   = flag.String("exam", "", "Exam UUID to take")
		accessCode  = flag.String("code", "", "Exam access code")
		cameraURL   = flag.String("camera", "http://localhost:8081/stream", "MJPEG webcam stream URL")
		detectorURL = flag.String("detector", "http://localhost:8082", "Face detector sidecar base URL")
		fps         = flag.Int("fps", proctor.DefaultFPS, "Frame analysis rate")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if *token == "" {
		log.Fatal().Msg("-token is required")
	}
	examID, err := uuid.Parse(*examIDStr)
	if err != nil {
		log.Fatal().Err(err).Msg("-exam must be a valid UUID")
	}
	if *accessCode == "" {
		log.Fatal().Msg("-code is required")
	}

	ctrl := session.NewController(
		session.Config{ExamID: examID, AccessCode: *accessCode},
		session.Deps{
			Coordinator: client.NewAPI(*serverURL, *token),
			Reporter:    client.NewWSReporter(*relayURL, *token, log),
			Camera:      &client.MJPEGCamera{URL: *cameraURL},
			Detector:    proctor.NewHTTPDetector(*detectorURL),
			Pacer:       proctor.NewTickerPacer(*fps),
			Log:         log,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First Ctrl-C submits the exam; a second one abandons the session.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Submit requested, finalizing session...")
		ctrl.Submit()
		<-sigCh
		log.Warn().Msg("Abandoning session")
		cancel()
	}()

	if err := ctrl.Run(ctx); err != nil {
		log.Fatal().Err(err).Str("cause", ctrl.SetupCause()).Msg("Session failed")
	}

	switch ctrl.State() {
	case session.StateTerminated:
		result := ctrl.Result()
		evt := log.Info().
			Str("reason", string(ctrl.Reason())).
			Int("violations", len(ctrl.Violations()))
		if result != nil {
			evt = evt.Int("score", result.Score).Int("total_marks", result.TotalMarks)
		}
		evt.Msg("Session terminated")
	default:
		log.Warn().Str("state", string(ctrl.State())).Msg("Session ended without termination")
	}
}
