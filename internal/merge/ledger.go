package merge

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zytedata/onefile/internal/model"
)

// entry is a test item the ledger can fold.
type entry[K comparable] interface {
	Key() K
	Outcomes() model.OutcomeSet
}

// ledger accumulates the items of one merge call.
// Items keep first-seen order; index maps a key to its position in items.
type ledger[K comparable, E entry[K]] struct {
	log  logrus.FieldLogger
	hook func(Transition)

	source    int
	stamped   bool
	timestamp time.Time
	elapsed   float64

	items []E
	index map[K]int
	tally model.Tally
	total int
}

func newLedger[K comparable, E entry[K]](m *Merger) *ledger[K, E] {
	return &ledger[K, E]{
		log:   m.log,
		hook:  m.onTransition,
		index: make(map[K]int),
	}
}

// advance opens the next source and reports whether it is authoritative,
// i.e. strictly newer than every source seen so far.
func (l *ledger[K, E]) advance(source int, ts time.Time, elapsed float64) bool {
	l.source = source
	l.elapsed += elapsed

	if l.stamped && !ts.After(l.timestamp) {
		l.log.WithFields(logrus.Fields{
			"source":    source,
			"timestamp": ts,
			"latest":    l.timestamp,
		}).Debug("Source is not newer than the latest one, keeping known outcomes")
		return false
	}

	l.stamped = true
	l.timestamp = ts
	l.log.WithFields(logrus.Fields{
		"source":    source,
		"timestamp": ts,
	}).Debug("Source is the newest so far, its outcomes win")
	return true
}

// fold adds the items of the current source.
func (l *ledger[K, E]) fold(items []E, authoritative bool) {
	for _, incoming := range items {
		key := incoming.Key()
		idx, found := l.index[key]

		switch {
		case !found:
			l.index[key] = len(l.items)
			l.items = append(l.items, incoming)
			l.total++
			l.tally.Add(incoming.Outcomes(), 1)
			l.log.WithField("test", key).Debug("Test seen for the first time")

		case authoritative:
			before := l.items[idx].Outcomes()
			after := incoming.Outcomes()

			l.tally.Add(before&^after, -1)
			l.tally.Add(after&^before, 1)
			l.items[idx] = incoming

			if before != after {
				l.log.WithFields(logrus.Fields{
					"test": key,
					"from": before,
					"to":   after,
				}).Debug("Outcome replaced by newer source")
				if l.hook != nil {
					l.hook(Transition{
						Test:   fmt.Sprint(key),
						From:   before,
						To:     after,
						Source: l.source,
					})
				}
			}

		default:
			l.log.WithField("test", key).Debug("Duplicate from an older source discarded")
		}
	}
}
