package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
	"gwi.com/polyglot-chat/internal/cache"
	"gwi.com/polyglot-chat/internal/logger"
)

// TranslationProvider turns text into targetLanguage. targetLanguage is the
// free-text language of the recipient and is passed through unvalidated.
//
// A successful call may return an empty string. Any failure is returned as a
// *TranslationFailure.
type TranslationProvider interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// asFailure makes sure err reaches the core as a *TranslationFailure.
func asFailure(err error) error {
	if err == nil {
		return nil
	}
	var failure *TranslationFailure
	if errors.As(err, &failure) {
		return err
	}
	return &TranslationFailure{Diagnostic: err.Error(), Err: err}
}

// CachingTranslator remembers non-empty translations in a cache and collapses
// concurrent identical requests into one provider call.
type CachingTranslator struct {
	next  TranslationProvider
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

func NewCachingTranslator(next TranslationProvider, c cache.Cache, ttl time.Duration) *CachingTranslator {
	return &CachingTranslator{next: next, cache: c, ttl: ttl}
}

func translationCacheKey(text, targetLanguage string) string {
	sum := sha256.Sum256([]byte(targetLanguage + "\x00" + text))
	return "translation:" + hex.EncodeToString(sum[:])
}

func (t *CachingTranslator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	key := translationCacheKey(text, targetLanguage)

	cached, err := t.cache.Get(ctx, key)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, cache.ErrMiss):
		logger.Warnf("Translation cache read failed, calling provider: %v", err)
	}

	// The shared call outlives any one caller: a waiter that gives up must not
	// fail the others. The provider bounds it with its own attempt timeouts.
	shared := context.WithoutCancel(ctx)
	ch := t.group.DoChan(key, func() (interface{}, error) {
		translated, err := t.next.Translate(shared, text, targetLanguage)
		if err != nil {
			return "", err
		}
		if translated != "" {
			if err := t.cache.Set(shared, key, translated, t.ttl); err != nil {
				logger.Warnf("Translation cache write failed: %v", err)
			}
		}
		return translated, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", asFailure(res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", asFailure(ctx.Err())
	}
}
