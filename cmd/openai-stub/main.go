// Command openai-stub is a tiny OpenAI-compatible server for trying the
// watcher without a model. It answers every question with one of the option
// letters found in it, picked deterministically from the question text.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/hyperifyio/autodiscover/internal/textnorm"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

var optionRe = regexp.MustCompile(`(?m)(?:^|\s)([A-E])\)`)

// pick returns the forced letter when set, otherwise one of the question's
// option letters (A-E when it has none).
func pick(question, forced string) string {
	if forced != "" {
		return forced
	}
	letters := []string{}
	seen := map[string]bool{}
	for _, m := range optionRe.FindAllStringSubmatch(question, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			letters = append(letters, m[1])
		}
	}
	if len(letters) == 0 {
		letters = []string{"A", "B", "C", "D", "E"}
	}
	return letters[int(textnorm.Fingerprint(question)%uint32(len(letters)))]
}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	// ANSWER forces the letter; ANSWER=raw replies without any letter.
	forced := strings.TrimSpace(os.Getenv("ANSWER"))

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) < 2 {
			http.Error(w, `{"error":{"message":"expected a system and a user message"}}`, http.StatusBadRequest)
			return
		}
		question := req.Messages[len(req.Messages)-1].Content
		content := pick(question, forced)
		if strings.EqualFold(forced, "raw") {
			content = "I cannot tell from the text given."
		}
		log.Printf("question (%d chars) -> %q", len(question), content)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": model,
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})

	log.Printf("openai-stub listening on %s (model=%s)", addr, model)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
