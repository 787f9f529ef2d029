package bridgeui_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/kembridge/bridgecheck/bridgeui"
	"github.com/kembridge/bridgecheck/stubapp"
)

// testIDs walks the document and collects every data-testid value.
func testIDs(t *testing.T, root *html.Node) map[string]int {
	t.Helper()

	ids := map[string]int{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "data-testid" {
					ids[attr.Val]++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return ids
}

// selectorID pulls the data-testid value out of an attribute selector.
func selectorID(t *testing.T, sel string) string {
	t.Helper()

	const prefix = `[data-testid="`
	if !strings.HasPrefix(sel, prefix) || !strings.HasSuffix(sel, `"]`) {
		t.Fatalf("selector %q is not a data-testid attribute selector", sel)
	}
	return strings.TrimSuffix(strings.TrimPrefix(sel, prefix), `"]`)
}

// The page object's selector contract must match the markup the fixture
// actually serves, with exactly one element per selector.
func TestSelectorsMatchFixturePage(t *testing.T) {
	srv := stubapp.New(stubapp.Config{})
	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("start fixture: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	resp, err := http.Get("http://" + addr + "/bridge")
	if err != nil {
		t.Fatalf("GET bridge page: %v", err)
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	ids := testIDs(t, doc)

	selectors := []string{
		bridgeui.SelBridgeForm,
		bridgeui.SelAuthPrompt,
		bridgeui.SelConnectBtn,
		bridgeui.SelTokenFrom,
		bridgeui.SelTokenTo,
		bridgeui.SelAmountInput,
		bridgeui.SelQuoteDisplay,
		bridgeui.SelSwapSubmit,
		bridgeui.SelWSStatus,
		bridgeui.SelTxStatus,
	}
	for _, sel := range selectors {
		id := selectorID(t, sel)
		switch n := ids[id]; n {
		case 1:
			// ok
		case 0:
			t.Errorf("fixture page has no element with data-testid=%q", id)
		default:
			t.Errorf("data-testid=%q appears %d times, want exactly one", id, n)
		}
	}
}
