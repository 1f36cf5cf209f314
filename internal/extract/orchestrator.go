// Package extract coordinates one extraction end to end: locate
// matching patent documents, pull out their table fragments, fan the
// fragments across a worker pool for transcription and relevance
// evaluation, and merge accepted rows into the task's consolidation
// store.
package extract

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dvloznov/patent-harvester/internal/llm"
	"github.com/dvloznov/patent-harvester/internal/patents"
	"github.com/dvloznov/patent-harvester/internal/schema"
	"github.com/dvloznov/patent-harvester/internal/store"
	"github.com/dvloznov/patent-harvester/internal/tasks"
)

// DocumentSource finds and reads patent documents. *patents.Locator is
// the production implementation.
type DocumentSource interface {
	Find(ctx context.Context, query string, limit int) ([]patents.Document, error)
	ReadDocument(doc patents.Document) (string, error)
}

// Store is what the orchestrator needs from a consolidation store.
type Store interface {
	Stage(csv string) error
	Merge(command string) error
	Finalize() (string, error)
	Close() error
}

// Config tunes one orchestrator.
type Config struct {
	// Workers bounds the fragment worker pool.
	Workers int
	// MatchLimit caps how many matching documents one extraction scans.
	MatchLimit int
	// MaxTablesPerDoc caps the tables scheduled from a single document.
	MaxTablesPerDoc int
	// NullToken is the reserved CSV null marker.
	NullToken string
}

// Orchestrator runs extractions against a shared task registry.
type Orchestrator struct {
	source      DocumentSource
	transcriber llm.Transcriber
	evaluator   llm.Evaluator
	registry    *tasks.Registry
	cfg         Config
	log         zerolog.Logger

	// openStore is swappable so tests can observe store access.
	openStore func(*schema.Dataset) (Store, error)
}

// New creates an orchestrator.
func New(source DocumentSource, transcriber llm.Transcriber, evaluator llm.Evaluator,
	registry *tasks.Registry, cfg Config, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		source:      source,
		transcriber: transcriber,
		evaluator:   evaluator,
		registry:    registry,
		cfg:         cfg,
		log:         log,
	}
	o.openStore = func(ds *schema.Dataset) (Store, error) {
		return store.Open(ds, cfg.NullToken)
	}
	return o
}

// Submit starts a new extraction. Document discovery and fragment
// registration run synchronously so the returned snapshot already
// carries the full pending fragment list (or a terminal completed state
// when there is nothing to do); fragment processing continues in the
// background. The registry retention sweep runs first.
func (o *Orchestrator) Submit(ctx context.Context, dataset *schema.Dataset) (string, tasks.Snapshot) {
	if evicted := o.registry.Sweep(); evicted > 0 {
		o.log.Info().Int("evicted", evicted).Msg("Swept expired tasks")
	}

	taskID := o.registry.Create(dataset)
	log := o.log.With().Str("task_id", taskID).Logger()

	o.registry.SetState(taskID, tasks.StateSearching)
	docs, err := o.source.Find(ctx, dataset.Query, o.cfg.MatchLimit)
	if err != nil {
		log.Error().Err(err).Msg("Document search failed")
		o.registry.Fail(taskID, fmt.Sprintf("document search failed: %v", err))
		return taskID, o.snapshot(taskID)
	}
	if len(docs) == 0 {
		log.Info().Str("query", dataset.Query).Msg("No matching patent files")
		o.registry.Complete(taskID, dataset.Header())
		return taskID, o.snapshot(taskID)
	}

	o.registry.SetState(taskID, tasks.StateExtracting)
	o.registry.SetFilesFound(taskID, len(docs))

	fragments := o.collectFragments(taskID, docs, log)
	if len(fragments) == 0 {
		log.Info().Int("files", len(docs)).Msg("No tables found in matching files")
		o.registry.Complete(taskID, dataset.Header())
		return taskID, o.snapshot(taskID)
	}

	o.registry.SetState(taskID, tasks.StateProcessing)
	log.Info().Int("files", len(docs)).Int("tables", len(fragments)).Msg("Starting fragment processing")

	go o.process(context.WithoutCancel(ctx), taskID, dataset, fragments)
	return taskID, o.snapshot(taskID)
}

func (o *Orchestrator) snapshot(taskID string) tasks.Snapshot {
	snap, _ := o.registry.Snapshot(taskID)
	return snap
}

// collectFragments reads each matched document, extracts its table
// nodes (capped per document), and registers every fragment as pending.
// Unreadable documents are skipped; they never abort the batch.
func (o *Orchestrator) collectFragments(taskID string, docs []patents.Document, log zerolog.Logger) []patents.Fragment {
	var fragments []patents.Fragment
	for _, doc := range docs {
		text, err := o.source.ReadDocument(doc)
		if err != nil {
			log.Warn().Err(err).Str("document", doc.Name).Msg("Skipping unreadable document")
			o.registry.IncFilesProcessed(taskID)
			continue
		}

		nodes := patents.ExtractTableNodes(text)
		if len(nodes) > o.cfg.MaxTablesPerDoc {
			log.Warn().Str("document", doc.Name).Int("tables", len(nodes)).
				Int("cap", o.cfg.MaxTablesPerDoc).Msg("Capping tables for document")
			nodes = nodes[:o.cfg.MaxTablesPerDoc]
		}
		for i, node := range nodes {
			frag := patents.Fragment{DocName: doc.Name, Index: i + 1, Total: len(nodes), XML: node}
			o.registry.RegisterFragment(taskID, frag.ID())
			fragments = append(fragments, frag)
		}
		o.registry.IncFilesProcessed(taskID)
	}
	return fragments
}

// mergeRequest is one relevant fragment's payload on its way to the
// store owner.
type mergeRequest struct {
	fragmentID string
	csv        string
	command    string
}

// process drives all fragments of one task to a terminal state and
// finalizes the result. Workers never touch the store: relevant
// fragments are sent to a single consumer goroutine that owns it, so
// stage+merge sequences of different fragments cannot interleave.
func (o *Orchestrator) process(ctx context.Context, taskID string, dataset *schema.Dataset, fragments []patents.Fragment) {
	log := o.log.With().Str("task_id", taskID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Fragment processing panicked")
			o.registry.Fail(taskID, fmt.Sprintf("background processing failed: %v", r))
		}
	}()

	st, err := o.openStore(dataset)
	if err != nil {
		log.Error().Err(err).Msg("Opening consolidation store failed")
		o.registry.Fail(taskID, fmt.Sprintf("opening consolidation store failed: %v", err))
		return
	}
	defer st.Close()

	merges := make(chan mergeRequest)
	var consumerDone sync.WaitGroup
	consumerDone.Add(1)
	go func() {
		defer consumerDone.Done()
		for req := range merges {
			o.mergeFragment(st, taskID, req, log)
		}
	}()

	jobs := make(chan patents.Fragment)
	var workers sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for frag := range jobs {
				o.processFragment(ctx, taskID, dataset, frag, merges, log)
			}
		}()
	}
	for _, frag := range fragments {
		jobs <- frag
	}
	close(jobs)
	workers.Wait()
	close(merges)
	consumerDone.Wait()

	o.registry.SetState(taskID, tasks.StateFinalizing)
	csvText, err := st.Finalize()
	if err != nil {
		log.Error().Err(err).Msg("Finalizing result failed")
		o.registry.Fail(taskID, fmt.Sprintf("finalizing result failed: %v", err))
		return
	}
	o.registry.Complete(taskID, csvText)
	log.Info().Msg("Extraction completed")
}

// processFragment takes one fragment from pending to a terminal state.
// Transcription failures mean the fragment contributes nothing;
// evaluation failures additionally land in the task error log. A panic
// is contained to the fragment.
func (o *Orchestrator) processFragment(ctx context.Context, taskID string, dataset *schema.Dataset,
	frag patents.Fragment, merges chan<- mergeRequest, log zerolog.Logger) {
	fragID := frag.ID()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("fragment", fragID).Msg("Fragment worker panicked")
			o.registry.AddError(taskID, fmt.Sprintf("%s: worker panic: %v", fragID, r))
			o.registry.MarkFragment(taskID, fragID, tasks.FragmentError)
		}
	}()

	o.registry.MarkFragment(taskID, fragID, tasks.FragmentProcessing)

	table, err := o.transcriber.Transcribe(ctx, frag.XML)
	if err != nil {
		log.Warn().Err(err).Str("fragment", fragID).Msg("Transcription failed")
		o.registry.MarkFragment(taskID, fragID, tasks.FragmentIrrelevant)
		return
	}
	if table == nil {
		log.Debug().Str("fragment", fragID).Msg("Fragment yielded no table")
		o.registry.MarkFragment(taskID, fragID, tasks.FragmentIrrelevant)
		return
	}

	verdict, err := o.evaluator.Evaluate(ctx, table, dataset)
	if err != nil {
		log.Warn().Err(err).Str("fragment", fragID).Msg("Relevance evaluation failed")
		o.registry.AddError(taskID, fmt.Sprintf("%s: relevance evaluation failed: %v", fragID, err))
		o.registry.MarkFragment(taskID, fragID, tasks.FragmentIrrelevant)
		return
	}
	if !verdict.Relevant || verdict.Command == "" {
		o.registry.MarkFragment(taskID, fragID, tasks.FragmentIrrelevant)
		return
	}

	merges <- mergeRequest{fragmentID: fragID, csv: table.CSV, command: verdict.Command}
}

// mergeFragment runs on the store-owner goroutine. Staging or merge
// failures are logged against the task, but the fragment still counts
// as relevant: the verdict accepted it and its CSV was non-empty.
func (o *Orchestrator) mergeFragment(st Store, taskID string, req mergeRequest, log zerolog.Logger) {
	if err := st.Stage(req.csv); err != nil {
		log.Warn().Err(err).Str("fragment", req.fragmentID).Msg("Staging failed")
		o.registry.AddError(taskID, fmt.Sprintf("%s: staging failed: %v", req.fragmentID, err))
		o.registry.MarkFragment(taskID, req.fragmentID, tasks.FragmentRelevant)
		return
	}
	if err := st.Merge(req.command); err != nil {
		log.Warn().Err(err).Str("fragment", req.fragmentID).Msg("Merge failed")
		o.registry.AddError(taskID, fmt.Sprintf("%s: merge failed: %v", req.fragmentID, err))
	}
	o.registry.MarkFragment(taskID, req.fragmentID, tasks.FragmentRelevant)
}
