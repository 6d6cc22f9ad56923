//go:build ruleguard

// Package gorules contains custom golangci-lint rules for PlateWatch, run through ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the Add/Done goroutine pattern that sync.WaitGroup.Go replaces.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("sync.WaitGroup") || m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... })").
		Suggest("$wg.Go(func() { $body })")
}

// StdLog flags the standard library logger outside of main; modules log through internal/logger.
func StdLog(m dsl.Matcher) {
	m.Match(
		`log.Printf($*_)`,
		`log.Println($*_)`,
		`log.Print($*_)`,
		`log.Fatalf($*_)`,
		`log.Fatal($*_)`,
	).
		Where(m.File().Imports("log") && !m.File().PkgPath.Matches(`^github.com/platewatch/platewatch$`)).
		Report("use a module logger from internal/logger instead of the standard log package")
}

// DefaultHTTPClient flags outbound requests without a deadline-aware client.
func DefaultHTTPClient(m dsl.Matcher) {
	m.Match(
		`http.Get($*_)`,
		`http.Post($*_)`,
		`http.DefaultClient.Do($*_)`,
	).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("use internal/httpclient so requests carry a context deadline")
}

// HostPort flags host:port formatting that breaks on IPv6 literals.
func HostPort(m dsl.Matcher) {
	m.Match(
		`fmt.Sprintf("%s:%d", $host, $port)`,
		`fmt.Sprintf("%v:%d", $host, $port)`,
	).
		Report("use net.JoinHostPort($host, strconv.Itoa($port))")
}
