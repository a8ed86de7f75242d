// Package htmldoc extracts values from fetched HTML pages with CSS selectors.
package htmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/Sternrassler/resilient-fetch/pkg/fetcher"
	"github.com/andybalholm/cascadia"
)

// ErrEmptySelector is returned when no selector is given.
var ErrEmptySelector = errors.New("empty selector")

// ErrInvalidSelector is returned for a selector that is not valid CSS.
var ErrInvalidSelector = errors.New("invalid selector")

// Document is a parsed page.
type Document struct {
	doc  *goquery.Document
	base *url.URL
}

// Parse parses the page body as HTML. Relative links resolve against the page URL.
func Parse(page *fetcher.Page) (*Document, error) {
	if page == nil {
		return nil, errors.New("nil page")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html from %s: %w", page.URL, err)
	}

	// Links stay relative when the page URL does not parse
	base, _ := url.Parse(page.URL)
	// <base href> overrides the page URL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if ref, err := url.Parse(href); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	return &Document{doc: doc, base: base}, nil
}

// Select returns the trimmed text of every element matching selector, or the
// value of attr when attr is not empty. Elements without attr are skipped.
func (d *Document) Select(selector, attr string) ([]string, error) {
	matcher, err := compile(selector)
	if err != nil {
		return nil, err
	}

	values := []string{}
	d.doc.FindMatcher(matcher).Each(func(_ int, s *goquery.Selection) {
		if attr == "" {
			values = append(values, strings.TrimSpace(s.Text()))
			return
		}
		if v, ok := s.Attr(attr); ok {
			values = append(values, strings.TrimSpace(v))
		}
	})
	return values, nil
}

// Links returns the absolute targets of every <a href>, in document order and
// without duplicates. Fragment-only and javascript: links are skipped.
func (d *Document) Links() []string {
	seen := make(map[string]struct{})
	links := []string{}

	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}

		link := d.resolve(href)
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

// Title returns the <title> text, falling back to the first <h1>.
func (d *Document) Title() string {
	if title := strings.TrimSpace(d.doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(d.doc.Find("h1").First().Text())
}

func (d *Document) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if d.base != nil {
		ref = d.base.ResolveReference(ref)
	}
	ref.Fragment = ""
	return ref.String()
}

// CheckSelector reports whether selector is a usable CSS selector.
func CheckSelector(selector string) error {
	_, err := compile(selector)
	return err
}

func compile(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, ErrEmptySelector
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, selector, err)
	}
	return sel, nil
}

// Select parses page and applies Document.Select.
func Select(page *fetcher.Page, selector, attr string) ([]string, error) {
	doc, err := Parse(page)
	if err != nil {
		return nil, err
	}
	return doc.Select(selector, attr)
}

// Links parses page and applies Document.Links.
func Links(page *fetcher.Page) ([]string, error) {
	doc, err := Parse(page)
	if err != nil {
		return nil, err
	}
	return doc.Links(), nil
}

// Title parses page and applies Document.Title.
func Title(page *fetcher.Page) (string, error) {
	doc, err := Parse(page)
	if err != nil {
		return "", err
	}
	return doc.Title(), nil
}
