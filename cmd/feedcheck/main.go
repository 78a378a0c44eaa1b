// Feedcheck probes every configured RSS feed and reports which ones are
// healthy, so dead feeds can be pruned from the list the server polls.
package main

import (
	"bytes"
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/matrixrain/backend/internal/feedlist"
	"github.com/matrixrain/backend/internal/logger"
)

const userAgent = "MatrixRain-RSS-Checker/1.0"

type checkStatus string

const (
	statusSuccess    checkStatus = "SUCCESS"
	statusHTTPError  checkStatus = "HTTP_ERROR"
	statusFetchError checkStatus = "REQUEST_ERROR"
	statusParseError checkStatus = "PARSE_ERROR"
	statusInvalidXML checkStatus = "INVALID_XML"
)

type checkResult struct {
	URL           string
	Status        checkStatus
	Err           string
	ResponseTime  time.Duration
	ContentLength int
}

func main() {
	var (
		feedsFile = flag.String("feeds", "rss_feeds.json", "path to the feeds file")
		timeout   = flag.Duration("timeout", 10*time.Second, "per-feed request timeout")
		out       = flag.String("out", "", "results log path (default feed_check_<timestamp>.log)")
	)
	flag.Parse()

	logger.Setup("text")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *feedsFile, *timeout, *out); err != nil {
		fmt.Fprintf(os.Stderr, "feedcheck: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, feedsFile string, timeout time.Duration, out string) error {
	sources := feedlist.New(feedsFile).Load()
	if len(sources) == 0 {
		return fmt.Errorf("no feeds found in %s", feedsFile)
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)

	fmt.Printf("Testing %d RSS feeds...\n\n", len(sources))

	results := make([]checkResult, 0, len(sources))
	for i, url := range sources {
		fmt.Printf("Testing %2d/%2d: %s\n", i+1, len(sources), url)

		res := checkFeed(ctx, client, url)
		results = append(results, res)

		if res.Status == statusSuccess {
			fmt.Printf("  ok (%.2fs, %d bytes)\n", res.ResponseTime.Seconds(), res.ContentLength)
		} else {
			fmt.Printf("  %s: %s\n", res.Status, res.Err)
		}

		// Small delay to be respectful to servers
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	working := printSummary(results)

	if out == "" {
		out = fmt.Sprintf("feed_check_%s.log", time.Now().Format("20060102_150405"))
	}
	if err := writeLog(out, results); err != nil {
		return fmt.Errorf("error writing results log: %w", err)
	}
	fmt.Printf("\nResults saved to %s\n", out)

	if working*2 < len(results) {
		return fmt.Errorf("only %d/%d feeds working", working, len(results))
	}

	return nil
}

// checkFeed probes one URL. Transport errors get one retry with backoff;
// anything the server actually answered is classified as-is.
func checkFeed(ctx context.Context, client *resty.Client, url string) checkResult {
	start := time.Now()

	var resp *resty.Response
	err := retry.Do(ctx, retry.WithMaxRetries(1, retry.NewFibonacci(time.Second)), func(ctx context.Context) error {
		r, err := client.R().SetContext(ctx).Get(url)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp = r

		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		return checkResult{URL: url, Status: statusFetchError, Err: err.Error(), ResponseTime: elapsed}
	}
	if resp.StatusCode() != http.StatusOK {
		return checkResult{
			URL:          url,
			Status:       statusHTTPError,
			Err:          fmt.Sprintf("status code: %d", resp.StatusCode()),
			ResponseTime: elapsed,
		}
	}

	body := resp.Body()
	status, errMsg := classify(body)

	return checkResult{
		URL:           url,
		Status:        status,
		Err:           errMsg,
		ResponseTime:  elapsed,
		ContentLength: len(body),
	}
}

// classify decides whether a 200 response actually looks like a feed.
func classify(body []byte) (checkStatus, string) {
	d := xml.NewDecoder(bytes.NewReader(body))

	var sawFeedShape bool
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return statusParseError, fmt.Sprintf("xml parse error: %s", err)
		}

		if start, ok := tok.(xml.StartElement); ok {
			switch start.Name.Local {
			case "rss", "feed", "channel", "item", "entry":
				sawFeedShape = true
			}
		}
	}

	if !sawFeedShape {
		return statusInvalidXML, "no rss or atom structure found"
	}

	return statusSuccess, ""
}

func printSummary(results []checkResult) int {
	counts := map[checkStatus]int{}
	var working int
	var totalTime time.Duration
	for _, res := range results {
		counts[res.Status]++
		if res.Status == statusSuccess {
			working++
			totalTime += res.ResponseTime
		}
	}

	fmt.Printf("\nWorking feeds: %d/%d (%.1f%%)\n", working, len(results), float64(working)/float64(len(results))*100)
	if working > 0 {
		fmt.Printf("Average response time: %.2fs\n", (totalTime / time.Duration(working)).Seconds())
	}
	for _, status := range []checkStatus{statusSuccess, statusHTTPError, statusFetchError, statusParseError, statusInvalidXML} {
		if counts[status] > 0 {
			fmt.Printf("  %s: %d\n", status, counts[status])
		}
	}

	return working
}

func writeLog(path string, results []checkResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "RSS feed check, generated %s\n\n", time.Now().Format(time.RFC3339))
	for _, res := range results {
		fmt.Fprintf(f, "%s %s (%.2fs)", res.Status, res.URL, res.ResponseTime.Seconds())
		if res.Err != "" {
			fmt.Fprintf(f, " error: %s", res.Err)
		}
		fmt.Fprintln(f)
	}

	return nil
}
