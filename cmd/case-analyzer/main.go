package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/legaldocumentflow/internal/models"
	"github.com/Lllllllleong/legaldocumentflow/internal/services"
)

var (
	analyzerInstance *services.AnalyzerFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleAnalyzeCase" is the entry point name we'll see in GCP.
	functions.HTTP("HandleAnalyzeCase", handleAnalyzeCase)
}

// main is required by the Go Functions Framework.
func main() {}

func handleAnalyzeCase(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		analyzerInstance, initErr = services.NewAnalyzer(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Analyzer initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := analyzerInstance.Process(r.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrBadRequest) {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		// The specific error is already logged inside the Process method.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Could not encode response", "error", err)
	}
}
