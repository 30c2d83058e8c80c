package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

const (
	trackingCodeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	trackingCodeMinLength  = 8
	trackingQueryParameter = "ref"
)

// BookingURLResolver returns the public booking page a teacher's links point to.
type BookingURLResolver interface {
	BookingBaseURL(ctx context.Context, teacherID uint) (string, error)
}

type templateBookingURLResolver struct {
	template string
}

// NewTemplateBookingURLResolver resolves booking URLs by substituting
// {teacher_id} in the configured template.
func NewTemplateBookingURLResolver(template string) BookingURLResolver {
	return &templateBookingURLResolver{template: strings.TrimSpace(template)}
}

func (r *templateBookingURLResolver) BookingBaseURL(_ context.Context, teacherID uint) (string, error) {
	if r.template == "" {
		return "", fmt.Errorf("booking url template is not configured")
	}

	return strings.ReplaceAll(r.template, "{teacher_id}", strconv.FormatUint(uint64(teacherID), 10)), nil
}

// TrackingLink is a generated attribution code and the URL carrying it.
type TrackingLink struct {
	Code string
	URL  string
}

// TrackingCodeGenerator produces attribution codes. Uniqueness is enforced by
// the store; callers ask for a fresh code when an insert collides.
type TrackingCodeGenerator interface {
	Generate(ctx context.Context, teacherID uint) (TrackingLink, error)
}

type trackingCodeGenerator struct {
	resolver BookingURLResolver
	length   int
	random   io.Reader
}

// NewTrackingCodeGenerator builds a generator emitting codes of the given length.
func NewTrackingCodeGenerator(resolver BookingURLResolver, length int) TrackingCodeGenerator {
	return newTrackingCodeGenerator(resolver, length, rand.Reader)
}

func newTrackingCodeGenerator(resolver BookingURLResolver, length int, random io.Reader) *trackingCodeGenerator {
	if length < trackingCodeMinLength {
		length = trackingCodeMinLength
	}

	return &trackingCodeGenerator{
		resolver: resolver,
		length:   length,
		random:   random,
	}
}

func (g *trackingCodeGenerator) Generate(ctx context.Context, teacherID uint) (TrackingLink, error) {
	code, err := g.randomCode()
	if err != nil {
		return TrackingLink{}, fmt.Errorf("failed to generate tracking code: %w", err)
	}

	base, err := g.resolver.BookingBaseURL(ctx, teacherID)
	if err != nil {
		return TrackingLink{}, fmt.Errorf("failed to resolve booking url: %w", err)
	}

	link, err := withTrackingCode(base, code)
	if err != nil {
		return TrackingLink{}, err
	}

	return TrackingLink{Code: code, URL: link}, nil
}

// randomCode draws uniformly from the alphabet by rejecting bytes past the
// largest multiple of its size.
func (g *trackingCodeGenerator) randomCode() (string, error) {
	const limit = 256 - (256 % len(trackingCodeAlphabet))

	code := make([]byte, 0, g.length)
	buffer := make([]byte, g.length*2)
	for len(code) < g.length {
		if _, err := io.ReadFull(g.random, buffer); err != nil {
			return "", err
		}
		for _, b := range buffer {
			if int(b) >= limit {
				continue
			}
			code = append(code, trackingCodeAlphabet[int(b)%len(trackingCodeAlphabet)])
			if len(code) == g.length {
				break
			}
		}
	}

	return string(code), nil
}

func withTrackingCode(base, code string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid booking url %q: %w", base, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("booking url %q must be absolute", base)
	}

	query := parsed.Query()
	query.Set(trackingQueryParameter, code)
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
