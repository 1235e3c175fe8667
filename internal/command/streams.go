package command

import (
	"context"
	"strings"
	"time"

	kverrors "github.com/alxayo/go-kv/internal/errors"
	"github.com/alxayo/go-kv/internal/resp"
	"github.com/alxayo/go-kv/internal/store"
)

func init() {
	register(Spec{Name: "XADD", MinArgc: 5, Parse: parseXAdd})
	register(Spec{Name: "XRANGE", MinArgc: 4, Parse: parseXRange})
	register(Spec{Name: "XREAD", MinArgc: 4, Parse: parseXRead})
}

type XAddCmd struct {
	Key    []byte
	IDSpec string
	Fields []store.Field
}

func parseXAdd(argv [][]byte) (Cmd, error) {
	rest := argv[3:]
	if len(rest)%2 != 0 {
		return nil, kverrors.NewInvalidArgument("XADD", nil)
	}
	fields := make([]store.Field, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		fields = append(fields, store.Field{Name: string(rest[i]), Value: rest[i+1]})
	}
	return &XAddCmd{Key: argv[1], IDSpec: string(argv[2]), Fields: fields}, nil
}

func (c *XAddCmd) Exec(env *Env) Reply {
	id, err := env.Store.XAdd(string(c.Key), c.IDSpec, c.Fields, env.Now())
	if err != nil {
		return errReply(err)
	}
	return one(resp.BulkValue([]byte(id.String())))
}

type XRangeCmd struct {
	Key        []byte
	Start, End string
}

func parseXRange(argv [][]byte) (Cmd, error) {
	return &XRangeCmd{Key: argv[1], Start: string(argv[2]), End: string(argv[3])}, nil
}

func resolveRangeBound(s string, isEnd bool) (store.StreamID, error) {
	switch s {
	case "-":
		return store.StreamID{}, nil
	case "+":
		return store.MaxStreamID, nil
	}
	return store.ParseStreamID(s)
}

func (c *XRangeCmd) Exec(env *Env) Reply {
	start, err := resolveRangeBound(c.Start, false)
	if err != nil {
		return errReply(err)
	}
	end, err := resolveRangeBound(c.End, true)
	if err != nil {
		return errReply(err)
	}
	entries, err := env.Store.XRange(string(c.Key), start, end)
	if err != nil {
		return errReply(err)
	}
	return one(encodeStreamEntries(entries))
}

func encodeStreamEntries(entries []store.StreamEntry) resp.Value {
	out := make([]resp.Value, len(entries))
	for i, e := range entries {
		fields := make([]resp.Value, 0, len(e.Fields)*2)
		for _, f := range e.Fields {
			fields = append(fields, resp.BulkValue([]byte(f.Name)), resp.BulkValue(f.Value))
		}
		out[i] = resp.ArrayValue(resp.BulkValue([]byte(e.ID.String())), resp.ArrayValue(fields...))
	}
	return resp.ArrayValue(out...)
}

// XReadCmd implements XREAD [BLOCK ms] STREAMS key... id...
type XReadCmd struct {
	BlockMs int64
	Block   bool
	Keys    []string
	IDSpecs []string
}

func parseXRead(argv [][]byte) (Cmd, error) {
	i := 1
	c := &XReadCmd{}
	if i < len(argv) && strings.EqualFold(string(argv[i]), "BLOCK") {
		ms, err := parseInt64("XREAD", argv[i+1])
		if err != nil {
			return nil, err
		}
		c.Block = true
		c.BlockMs = ms
		i += 2
	}
	if i >= len(argv) || !strings.EqualFold(string(argv[i]), "STREAMS") {
		return nil, kverrors.NewInvalidArgument("XREAD", nil)
	}
	i++
	rest := argv[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return nil, kverrors.NewInvalidArgument("XREAD", nil)
	}
	n := len(rest) / 2
	c.Keys = make([]string, n)
	c.IDSpecs = make([]string, n)
	for j := 0; j < n; j++ {
		c.Keys[j] = string(rest[j])
		c.IDSpecs[j] = string(rest[n+j])
	}
	return c, nil
}

func (c *XReadCmd) resolveAfter(env *Env, key, idSpec string) (store.StreamID, error) {
	if idSpec == "$" {
		k, ok := env.Store.Type(key)
		if !ok || k != store.KindStream {
			return store.StreamID{}, nil
		}
		entries, err := env.Store.XReadAfter(key, store.StreamID{})
		if err != nil {
			return store.StreamID{}, err
		}
		if len(entries) == 0 {
			return store.StreamID{}, nil
		}
		return entries[len(entries)-1].ID, nil
	}
	return store.ParseStreamID(idSpec)
}

func (c *XReadCmd) Exec(env *Env) Reply {
	afters := make([]store.StreamID, len(c.Keys))
	for i, k := range c.Keys {
		after, err := c.resolveAfter(env, k, c.IDSpecs[i])
		if err != nil {
			return errReply(err)
		}
		afters[i] = after
	}

	if !c.Block {
		return one(c.buildNonBlockingReply(env, afters))
	}

	ctx := env.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if c.BlockMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.BlockMs)*time.Millisecond)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		key     string
		entries []store.StreamEntry
	}
	resultCh := make(chan result, len(c.Keys))
	for i, k := range c.Keys {
		k, after := k, afters[i]
		go func() {
			entries, err := env.Store.XReadBlock(ctx, k, after, time.Duration(c.BlockMs)*time.Millisecond)
			if err != nil || len(entries) == 0 {
				return
			}
			select {
			case resultCh <- result{key: k, entries: entries}:
			case <-ctx.Done():
			}
		}()
	}

	select {
	case r := <-resultCh:
		return one(resp.ArrayValue(resp.ArrayValue(resp.BulkValue([]byte(r.key)), encodeStreamEntries(r.entries))))
	case <-ctx.Done():
		return one(resp.NullBulk())
	}
}

func (c *XReadCmd) buildNonBlockingReply(env *Env, afters []store.StreamID) resp.Value {
	var streams []resp.Value
	for i, k := range c.Keys {
		entries, err := env.Store.XReadAfter(k, afters[i])
		if err != nil || len(entries) == 0 {
			continue
		}
		streams = append(streams, resp.ArrayValue(resp.BulkValue([]byte(k)), encodeStreamEntries(entries)))
	}
	if len(streams) == 0 {
		return resp.NullBulk()
	}
	return resp.ArrayValue(streams...)
}
