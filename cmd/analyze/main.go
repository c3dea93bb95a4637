package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/lk16/kibitz/internal/config"
	"github.com/lk16/kibitz/internal/models"
	"github.com/lk16/kibitz/internal/ws"
)

const startPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func main() {
	engineKind := flag.String("engine", models.EngineUCI, "Engine to use: uci or builtin")
	position := flag.String("fen", startPosition, "Position to analyze")
	lineCount := flag.Int("lines", 1, "Number of lines to report")
	depth := flag.Int("depth", 12, "Depth to analyze to")
	moveTime := flag.Duration("movetime", 0, "Find the best move within this time instead of analyzing to depth")
	flag.Parse()

	config.SetLogLevel()

	request := models.Init{
		LineCount: *lineCount,
		Depth:     *depth,
		Engine:    *engineKind,
	}

	if err := request.Config().Validate(); err != nil {
		slog.Error("Invalid arguments", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, request, *position, *moveTime); err != nil {
		slog.Error("Analysis failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, request models.Init, position string, moveTime time.Duration) error {
	analyzer, err := ws.NewAnalyzerFactory(config.LoadEngineConfig())(request)
	if err != nil {
		return err
	}
	defer analyzer.Dispose()

	done := make(chan error, 1)
	encoder := json.NewEncoder(os.Stdout)
	var encoderMutex sync.Mutex

	unsubscribe := analyzer.Subscribe(func(event models.Event) {
		encoderMutex.Lock()
		err := encoder.Encode(models.NewOutgoing(0, event))
		encoderMutex.Unlock()

		if err != nil {
			slog.Warn("Failed to print event", "error", err)
		}

		var result error
		switch e := event.(type) {
		case models.BestMove:
		case models.Error:
			result = fmt.Errorf("engine error: %s", e.Message)
		default:
			return
		}

		// Only the first result is reported.
		select {
		case done <- result:
		default:
		}
	})
	defer unsubscribe()

	if err = analyzer.Initialize(ctx); err != nil {
		return err
	}

	var epoch uint64
	if moveTime > 0 {
		epoch = analyzer.FindBestMove(position, moveTime)
	} else {
		epoch = analyzer.AnalyzePosition(position)
	}

	if epoch == 0 {
		return fmt.Errorf("search was not started for %q", position)
	}

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		analyzer.Stop()
		return ctx.Err()
	}
}
