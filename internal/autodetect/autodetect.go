// Package autodetect implements the `-P auto` protocol-autodetection state
// machine (spec §4.7): sample the power-up announcement and classify which
// dialect engine should run, without committing to one ahead of time.
package autodetect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stcisp/internal/dialect"
	"stcisp/internal/frame"
	"stcisp/internal/stcerr"
	"stcisp/internal/transport"
)

// HandshakeBaud is the fixed baud autodetection expects the transport to be
// open at, with even parity, before any dialect is known (spec §4.7).
const HandshakeBaud = 2400

// Signature maps a magic/BSL-version-prefix combination to the dialect
// names consistent with it. Multiple entries may match the same
// announcement; preferNewest keeps the dialect of the newest generation in
// PreferOrder.
type Signature struct {
	Magic           uint16
	VersionPrefixes []string // empty means "any version"
	Dialects        []string
}

// PreferOrder ranks dialect generations from oldest to newest; when an
// announcement is ambiguous across more than one generation, the newest
// (last in this list) wins (spec §4.7: "prefer the newer dialect").
// Dialects listed together (stc12 and stc12b) are one generation, so a
// match on both stays ambiguous.
var PreferOrder = [][]string{{"stc89"}, {"stc12a"}, {"stc12", "stc12b"}, {"stc15a"}, {"stc15"}, {"stc8"}, {"usb15"}}

// table is intentionally small and explicit rather than derived from
// mcudb, since a magic number alone doesn't determine dialect: two
// generations can reuse close magic ranges and are disambiguated by BSL
// version prefix instead (spec §4.7, §9 open questions).
//
// The 0xD202/"7." row is a documented open question, not a plausible
// hardware signature: original_source was filtered from the retrieved
// pack (see DESIGN.md), so there's no record of which BSL-version prefix
// actually separates a 0xD202 stc12 from a stc12b in the field on that
// firmware line. Until that's known, both stay listed as candidates,
// which is exactly the unresolved-ambiguity case §4.7 requires Detect to
// report as AutodetectAmbiguous rather than silently guess.
var table = []Signature{
	{Magic: 0xD201, VersionPrefixes: nil, Dialects: []string{"stc12b"}},
	{Magic: 0xD202, VersionPrefixes: []string{"6."}, Dialects: []string{"stc12b"}},
	{Magic: 0xD202, VersionPrefixes: []string{"7."}, Dialects: []string{"stc12", "stc12b"}},
	{Magic: 0xF449, VersionPrefixes: nil, Dialects: []string{"stc15a"}},
	{Magic: 0xF460, VersionPrefixes: nil, Dialects: []string{"stc15"}},
	{Magic: 0xF500, VersionPrefixes: nil, Dialects: []string{"stc8"}},
	{Magic: 0xF000, VersionPrefixes: nil, Dialects: []string{"stc89"}},
	{Magic: 0xD10F, VersionPrefixes: nil, Dialects: []string{"stc12a"}},
}

// Result is what Detect returns: the classified dialect and the raw
// announcement payload so the caller's handshake doesn't have to be
// replayed.
type Result struct {
	Dialect      string
	Magic        uint16
	BSLVersion   string
	Announcement []byte
}

// Detect reads one power-up announcement off t and classifies it. t must
// already be configured for HandshakeBaud with even parity; that's a
// transport-construction concern the session owns.
func Detect(t transport.Transport, deadline time.Time) (Result, error) {
	f, err := frame.NewUARTReader(t).ReadFrame(deadline)
	if err != nil {
		return Result{}, stcerr.Wrap(stcerr.LinkLost, "autodetect", err)
	}

	magic, bslVersion, err := dialect.DecodeSignature(f.Payload)
	if err != nil {
		return Result{}, stcerr.Wrap(stcerr.FrameError, "autodetect", err)
	}

	candidates := matchCandidates(magic, bslVersion)
	if len(candidates) == 0 {
		return Result{}, &stcerr.Error{Kind: stcerr.UnknownModel, Stage: "autodetect", Msg: fmt.Sprintf("0x%04X", magic)}
	}
	if len(candidates) > 1 {
		sort.Strings(candidates)
		return Result{}, &stcerr.Error{
			Kind:  stcerr.AutodetectAmbiguous,
			Stage: "autodetect",
			Msg:   fmt.Sprintf("magic 0x%04X BSL %s matches %s", magic, bslVersion, strings.Join(candidates, ", ")),
		}
	}

	return Result{
		Dialect:      candidates[0],
		Magic:        magic,
		BSLVersion:   bslVersion,
		Announcement: f.Payload,
	}, nil
}

func matchCandidates(magic uint16, bslVersion string) []string {
	seen := map[string]bool{}
	var out []string
	for _, sig := range table {
		if sig.Magic != magic {
			continue
		}
		if !matchesPrefix(bslVersion, sig.VersionPrefixes) {
			continue
		}
		for _, d := range sig.Dialects {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return preferNewest(out)
}

func matchesPrefix(version string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(version, p) {
			return true
		}
	}
	return false
}

// preferNewest collapses a multi-dialect match down to the single newest
// one per PreferOrder, unless more than one remains tied for newest (in
// which case the ambiguity is real and reported as-is).
func preferNewest(candidates []string) []string {
	if len(candidates) <= 1 {
		return candidates
	}
	rank := func(name string) int {
		for i, generation := range PreferOrder {
			for _, d := range generation {
				if d == name {
					return i
				}
			}
		}
		return -1
	}
	best := -1
	for _, c := range candidates {
		if r := rank(c); r > best {
			best = r
		}
	}
	var newest []string
	for _, c := range candidates {
		if rank(c) == best {
			newest = append(newest, c)
		}
	}
	if len(newest) == 1 {
		return newest
	}
	return candidates
}
