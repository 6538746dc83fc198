// Команда qrcheck проверяет содержимое QR-кодов товара так же, как терминал
// при сканировании. Коды берутся из аргументов, а без аргументов из stdin,
// по одному на строку.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/alebrije/pos/internal/qr"
)

const envAppID = "POS_APP_ID"

type result struct {
	Input   string      `json:"input"`
	Valid   bool        `json:"valid"`
	Error   string      `json:"error,omitempty"`
	Payload *qr.Payload `json:"payload,omitempty"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	var (
		appID   string
		asJSON  bool
		nowUnix int64
	)
	flag.StringVar(&appID, "app", os.Getenv(envAppID), "expected app id (fallback: "+envAppID+")")
	flag.BoolVar(&asJSON, "json", false, "print one JSON object per payload")
	flag.Int64Var(&nowUnix, "now", 0, "check expiry against this unix time in milliseconds (0=current time)")
	flag.Parse()

	now := time.Now()
	if nowUnix != 0 {
		now = time.UnixMilli(nowUnix)
	}

	os.Exit(run(flag.Args(), os.Stdin, os.Stdout, appID, now, asJSON))
}

// run проверяет каждый код и возвращает код выхода: 1, если хотя бы один невалиден.
func run(args []string, stdin io.Reader, out io.Writer, appID string, now time.Time, asJSON bool) int {
	inputs := args
	if len(inputs) == 0 {
		var err error
		if inputs, err = readLines(stdin); err != nil {
			_, _ = fmt.Fprintf(out, "read stdin: %v\n", err)
			return 1
		}
	}

	exitCode := 0
	for _, input := range inputs {
		res := check(input, appID, now)
		if !res.Valid {
			exitCode = 1
		}
		if asJSON {
			line, _ := json.Marshal(res)
			_, _ = fmt.Fprintln(out, string(line))
			continue
		}
		if res.Valid {
			_, _ = fmt.Fprintf(out, "OK productId=%s store=%s\n", res.Payload.ProductID, res.Payload.Store)
		} else {
			_, _ = fmt.Fprintln(out, res.Error)
		}
	}
	return exitCode
}

func check(input, appID string, now time.Time) result {
	payload, err := qr.ParseAt(input, appID, now)
	if err != nil {
		return result{Input: input, Error: qr.Kind(err)}
	}
	return result{Input: input, Valid: true, Payload: &payload}
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
