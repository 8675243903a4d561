package export

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"binexport/internal/container"
	"binexport/internal/model"
)

// Options configure Export. Zero Workers means one per CPU.
type Options struct {
	InputBinary  string
	InputHash    []byte
	AddressBits  uint32
	Architecture string
	Workers      int
	Logger       *slog.Logger
}

// Stats summarizes a finished export.
type Stats struct {
	Functions    int   `json:"functions"`
	FlowGraphs   int   `json:"flow_graphs"`
	Instructions int   `json:"instructions"`
	BasicBlocks  int   `json:"basic_blocks"`
	Edges        int   `json:"edges"`
	CallEdges    int   `json:"call_edges"`
	Bytes        int64 `json:"bytes"`
}

// Export writes the container for p to w. Flow graphs are encoded on
// opts.Workers goroutines but reach w strictly in ascending address order,
// so the output does not depend on the worker count.
//
// On error w holds a partial file that the caller must discard.
func Export(ctx context.Context, w io.WriteSeeker, p Provider, opts Options) (*Stats, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	start := time.Now()

	fns, err := p.Functions(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: functions: %w", err)
	}
	fns = slices.Clone(fns)
	slices.SortStableFunc(fns, func(a, b Function) int { return cmp.Compare(a.Address, b.Address) })
	for i := 1; i < len(fns); i++ {
		if fns[i].Address == fns[i-1].Address {
			return nil, &model.InvariantError{Record: "callgraph",
				Msg: fmt.Sprintf("duplicate function 0x%x", fns[i].Address)}
		}
	}
	edges, err := p.CallEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: call edges: %w", err)
	}

	// Pass 1: fingerprints and counts.
	meta := &model.Meta{
		InputBinary:  opts.InputBinary,
		InputHash:    opts.InputHash,
		AddressBits:  opts.AddressBits,
		Architecture: opts.Architecture,
	}
	cg := &model.CallGraph{Vertices: make([]model.Vertex, len(fns)), Edges: edges}
	var bodies []Function
	for i, fn := range fns {
		v := model.Vertex{
			Address:     fn.Address,
			Type:        fn.Type,
			HasRealName: fn.HasRealName,
			MangledName: fn.MangledName,
		}
		if fn.DemangledName != fn.MangledName {
			v.DemangledName = fn.DemangledName
		}
		if fn.Type.HasFlowGraph() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			body, err := p.Body(ctx, fn)
			if err != nil {
				return nil, fmt.Errorf("export: body 0x%x: %w", fn.Address, err)
			}
			v.Prime = FunctionPrime(body)
			countBody(meta, body)
			bodies = append(bodies, fn)
		}
		cg.Vertices[i] = v
	}
	meta.NumFunctions = uint32(len(bodies))
	log.Debug("export pass 1 done",
		"functions", len(fns),
		"flow_graphs", len(bodies),
		"instructions", meta.NumInstructions)

	cw, err := container.NewWriter(w, len(bodies))
	if err != nil {
		return nil, err
	}
	if err := cw.WriteMeta(meta); err != nil {
		return nil, err
	}
	if err := cw.WriteCallGraph(cg); err != nil {
		return nil, err
	}

	// Pass 2: encode in parallel, append in order.
	if err := writeFlowGraphs(ctx, cw, p, bodies, opts.workers(), log); err != nil {
		return nil, err
	}
	if err := cw.Close(); err != nil {
		return nil, err
	}

	st := &Stats{
		Functions:    len(fns),
		FlowGraphs:   len(bodies),
		Instructions: int(meta.NumInstructions),
		BasicBlocks:  int(meta.NumBasicBlocks),
		Edges:        int(meta.NumEdges),
		CallEdges:    len(edges),
		Bytes:        cw.Offset(),
	}
	log.Info("export done",
		"flow_graphs", st.FlowGraphs,
		"bytes", st.Bytes,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return st, nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func countBody(meta *model.Meta, body *Body) {
	if body == nil {
		return
	}
	meta.NumBasicBlocks += uint32(len(body.Blocks))
	meta.NumEdges += uint32(len(body.Edges))
	for _, blk := range body.Blocks {
		meta.NumInstructions += uint32(len(blk.Instructions))
		for i := range blk.Instructions {
			if n := uint32(len(blk.Instructions[i].Mnemonic)); n > meta.MaxMnemonicLen {
				meta.MaxMnemonicLen = n
			}
		}
	}
}

type encoded struct {
	fg  *model.FlowGraph
	err error
}

// writeFlowGraphs encodes fns on up to workers goroutines. At most
// 2*workers results are in flight; each lands in its own slot and the
// slots are drained in submission order.
func writeFlowGraphs(ctx context.Context, cw *container.Writer, p Provider, fns []Function, workers int, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slots := make(chan chan encoded, 2*workers)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	go func() {
		defer close(slots)
		for _, fn := range fns {
			slot := make(chan encoded, 1)
			select {
			case slots <- slot:
			case <-ctx.Done():
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				slot <- encoded{err: ctx.Err()}
				return
			}
			wg.Add(1)
			go func(fn Function) {
				defer wg.Done()
				defer func() { <-sem }()
				slot <- encodeFunction(ctx, p, fn)
			}(fn)
		}
	}()

	var err error
	for slot := range slots {
		res := <-slot
		if err != nil {
			continue
		}
		err = res.err
		if err == nil {
			err = cw.WriteFlowGraph(res.fg)
		}
		if err != nil {
			cancel()
		}
	}
	wg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Debug("export pass 2 aborted", "written", cw.Written(), "error", err)
	}
	return err
}

func encodeFunction(ctx context.Context, p Provider, fn Function) encoded {
	if err := ctx.Err(); err != nil {
		return encoded{err: err}
	}
	body, err := p.Body(ctx, fn)
	if err != nil {
		return encoded{err: fmt.Errorf("export: body 0x%x: %w", fn.Address, err)}
	}
	fg, err := EncodeFlowGraph(fn.Address, body)
	return encoded{fg: fg, err: err}
}
