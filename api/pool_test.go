package api

import (
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"dealdesk-api/domain"
)

func TestTryEnqueueEnrichmentWaitsForCapacity(t *testing.T) {
	resetEnrichmentSenderForTests()
	t.Cleanup(resetEnrichmentSenderForTests)

	enrichJobs = make(chan enrichJob, 1)
	enrichHandoff = 50 * time.Millisecond

	enrichJobs <- enrichJob{}

	done := make(chan bool, 1)
	go func() {
		done <- tryEnqueueEnrichment(enrichJob{})
	}()

	select {
	case <-done:
		t.Fatal("tryEnqueueEnrichment returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-enrichJobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful enqueue after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for enqueue completion")
	}
}

func TestTryEnqueueEnrichmentTimesOut(t *testing.T) {
	resetEnrichmentSenderForTests()
	t.Cleanup(resetEnrichmentSenderForTests)

	enrichJobs = make(chan enrichJob, 1)
	enrichHandoff = 30 * time.Millisecond

	enrichJobs <- enrichJob{}

	if tryEnqueueEnrichment(enrichJob{}) {
		t.Fatal("expected enqueue to fail when timeout elapsed")
	}

	select {
	case <-enrichJobs:
	default:
		t.Fatal("expected channel to remain full after timeout")
	}
}

func TestTryEnqueueEnrichmentReturnsFalseWhenClosed(t *testing.T) {
	resetEnrichmentSenderForTests()
	t.Cleanup(resetEnrichmentSenderForTests)
	t.Cleanup(func() { enrichJobs = nil })

	enrichJobs = make(chan enrichJob)
	close(enrichJobs)

	if tryEnqueueEnrichment(enrichJob{}) {
		t.Fatal("expected enqueue to fail when channel is closed")
	}
}

func TestTryEnqueueEnrichmentNoWaitWhenZeroTimeout(t *testing.T) {
	resetEnrichmentSenderForTests()
	t.Cleanup(resetEnrichmentSenderForTests)

	enrichJobs = make(chan enrichJob, 1)
	enrichHandoff = 0

	enrichJobs <- enrichJob{}

	if tryEnqueueEnrichment(enrichJob{}) {
		t.Fatal("expected enqueue to fail when buffer full and no timeout")
	}

	<-enrichJobs

	if !tryEnqueueEnrichment(enrichJob{}) {
		t.Fatal("expected enqueue to succeed when buffer has capacity")
	}
}

func TestEnrichmentWorkersDrainJobs(t *testing.T) {
	resetEnrichmentSenderForTests()
	t.Cleanup(resetEnrichmentSenderForTests)

	store := &mockStore{}
	initEnrichmentSender(store, log.New())

	job := enrichJob{workspaceID: "ws", companies: []domain.Company{
		{Domain: "acme.example"},
		{Domain: "globex.example"},
	}}
	if !tryEnqueueEnrichment(job) {
		t.Fatal("expected enqueue to succeed")
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		if len(store.Enqueued()) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for workers, got %d companies", len(store.Enqueued()))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTryEnqueueEnrichmentConcurrentWriters(t *testing.T) {
	resetEnrichmentSenderForTests()
	t.Cleanup(resetEnrichmentSenderForTests)

	enrichJobs = make(chan enrichJob, 2)
	enrichHandoff = 100 * time.Millisecond

	enrichJobs <- enrichJob{}
	enrichJobs <- enrichJob{}

	var wg sync.WaitGroup
	wg.Add(2)
	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			results <- tryEnqueueEnrichment(enrichJob{})
		}()
	}

	time.Sleep(20 * time.Millisecond)

	<-enrichJobs
	<-enrichJobs

	wg.Wait()
	close(results)

	successCount := 0
	for r := range results {
		if r {
			successCount++
		}
	}

	if successCount != 2 {
		t.Fatalf("expected both enqueues to succeed after capacity freed, got %d", successCount)
	}
}
