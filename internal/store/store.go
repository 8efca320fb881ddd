package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"callmarket/internal/common"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrRoundCommitted = errors.New("round already committed")
)

// Store is an append-only arena of committed rounds. Every snapshot is keyed
// by group and round so the state entering a round is an indexed read of the
// previous one.
type Store struct {
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	return OpenWithOptions(path, &pebble.Options{})
}

func OpenWithOptions(path string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to open store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// keys: m:<group>\x00<round> market, o:<group>\x00<round> orders,
// p:<group>\x00<round><participant> participant. Rounds are big-endian so
// iteration follows round order.
func groupPrefix(kind byte, group string) []byte {
	k := make([]byte, 0, 3+len(group))
	k = append(k, kind, ':')
	k = append(k, group...)
	return append(k, 0)
}

func roundKey(kind byte, group string, round int) []byte {
	return binary.BigEndian.AppendUint64(groupPrefix(kind, group), uint64(round))
}

func kMarket(group string, round int) []byte { return roundKey('m', group, round) }
func kOrders(group string, round int) []byte { return roundKey('o', group, round) }
func kParticipant(group string, round int, participant string) []byte {
	return append(roundKey('p', group, round), participant...)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// SaveRound commits the outcome of a round. A round can only be committed
// once.
func (s *Store) SaveRound(market common.MarketState, participants []common.ParticipantState, orders []*common.Order) error {
	if _, closer, err := s.db.Get(kMarket(market.Group, market.Round)); err == nil {
		closer.Close()
		return fmt.Errorf("%w: group %s round %d", ErrRoundCommitted, market.Group, market.Round)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("failed to read market: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := setJSON(batch, kMarket(market.Group, market.Round), market); err != nil {
		return err
	}
	for _, p := range participants {
		if err := setJSON(batch, kParticipant(market.Group, market.Round, p.Participant), p); err != nil {
			return err
		}
	}
	if err := setJSON(batch, kOrders(market.Group, market.Round), orders); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit round: %w", err)
	}

	log.Debug().
		Str("group", market.Group).
		Int("round", market.Round).
		Int("participants", len(participants)).
		Int("orders", len(orders)).
		Msg("round committed")
	return nil
}

func setJSON(batch *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return batch.Set(key, data, nil)
}

func (s *Store) getJSON(key []byte, v any) error {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	return json.Unmarshal(data, v)
}

// Market returns the committed market state of a round.
func (s *Store) Market(group string, round int) (common.MarketState, error) {
	var m common.MarketState
	err := s.getJSON(kMarket(group, round), &m)
	return m, err
}

// Orders returns the finalized orders of a round.
func (s *Store) Orders(group string, round int) ([]*common.Order, error) {
	var orders []*common.Order
	err := s.getJSON(kOrders(group, round), &orders)
	return orders, err
}

// Participant returns the committed state of one participant.
func (s *Store) Participant(group string, round int, participant string) (common.ParticipantState, error) {
	var p common.ParticipantState
	err := s.getJSON(kParticipant(group, round, participant), &p)
	return p, err
}

// Participants returns every participant state committed for a round,
// ordered by participant.
func (s *Store) Participants(group string, round int) ([]common.ParticipantState, error) {
	prefix := roundKey('p', group, round)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []common.ParticipantState
	for iter.First(); iter.Valid(); iter.Next() {
		var p common.ParticipantState
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, iter.Error()
}

// Entering returns the states entering round: the previous round's
// resulting positions handed over.
func (s *Store) Entering(group string, round int) ([]common.ParticipantState, error) {
	prior, err := s.Participants(group, round-1)
	if err != nil {
		return nil, err
	}
	out := make([]common.ParticipantState, len(prior))
	for i, p := range prior {
		out[i] = p.Next()
	}
	return out, nil
}

// LastMarket returns the latest committed market state of a group.
func (s *Store) LastMarket(group string) (common.MarketState, error) {
	prefix := groupPrefix('m', group)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return common.MarketState{}, err
	}
	defer iter.Close()

	if !iter.Last() {
		return common.MarketState{}, ErrNotFound
	}
	var m common.MarketState
	if err := json.Unmarshal(iter.Value(), &m); err != nil {
		return common.MarketState{}, fmt.Errorf("failed to unmarshal market: %w", err)
	}
	return m, nil
}
