package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dealdesk-api/domain"
)

type enrichJob struct {
	workspaceID string
	companies   []domain.Company
}

var (
	enrichOnce      sync.Once
	enrichJobs      chan enrichJob
	enrichWorkers   int
	enrichBuf       int
	enrichTimeout   time.Duration
	enrichHandoff   time.Duration
	enrichBG        = context.Background()
	globalEnrich    Storage
	globalEnrichLog *log.Logger
	enrichWG        sync.WaitGroup
)

// shutdownEnrichmentSender stops worker goroutines and clears shared state. It is intended for tests.
func shutdownEnrichmentSender() {
	if enrichJobs != nil {
		close(enrichJobs)
		enrichJobs = nil
	}

	enrichWG.Wait()

	globalEnrich = nil
	globalEnrichLog = nil
	enrichWorkers = 0
	enrichBuf = 0
	enrichTimeout = 0
	enrichHandoff = 0
	enrichOnce = sync.Once{}
	enrichWG = sync.WaitGroup{}
}

func initEnrichmentSender(store Storage, log *log.Logger) {
	enrichOnce.Do(func() {
		globalEnrich = store
		if log == nil {
			panic("Logger is not initialized")
		}
		globalEnrichLog = log

		enrichWorkers = envInt("ENRICH_WORKERS", 8)
		enrichBuf = envInt("ENRICH_BUFFER", 1024)
		enrichTimeout = envDur("ENRICH_TIMEOUT", 60*time.Second)
		enrichHandoff = envDur("ENRICH_HANDOFF_TIMEOUT", 15*time.Millisecond)

		enrichJobs = make(chan enrichJob, enrichBuf)
		for i := 0; i < enrichWorkers; i++ {
			enrichWG.Add(1)
			go enrichWorker(i, enrichJobs)
		}
		globalEnrichLog.Infof("enrichment sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", enrichWorkers, enrichBuf, enrichTimeout, enrichHandoff)
	})
}

func enrichWorker(id int, jobCh <-chan enrichJob) {
	defer enrichWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(enrichBG, enrichTimeout)
		err := globalEnrich.EnqueueEnrichmentJobs(ctx, j.workspaceID, j.companies)
		cancel()

		if err != nil {
			globalEnrichLog.Errorf("enqueue enrichment failed, err: %v, workspace: %s, companies: %d, worker: %d", err, j.workspaceID, len(j.companies), id)
		}
	}
}

func tryEnqueueEnrichment(job enrichJob) bool {
	if enrichJobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(enrichJobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if enrichHandoff <= 0 {
		return false
	}

	timer := time.NewTimer(enrichHandoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(enrichJobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan enrichJob, job enrichJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan enrichJob, job enrichJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
