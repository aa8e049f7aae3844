package resourceclass

import (
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		path string
		want Class
	}{
		{"/", ClassDocument},
		{"/index.html", ClassDocument},
		{"/dashboard/", ClassDocument},
		{"/static/js/chunk-2f9a.js", ClassScript},
		{"/assets/js/vendor.js", ClassScript},
		// script extension outside a js segment is not a chunk
		{"/config.js", ClassOther},
		{"/static/css/main.css", ClassStylesheet},
		{"/logo.png", ClassImage},
		{"/img/photo.JPEG", ClassImage},
		{"/favicon.ico", ClassImage},
		{"/fonts/inter.woff2", ClassFont},
		{"/fonts/inter.ttf", ClassFont},
		{"/api/v1/wallets.json", ClassOther},
		{"/data", ClassOther},
		{"/some.dir/file", ClassOther},
	}
	for _, c := range cases {
		if got := Classify(c.path); got != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.path, got, c.want)
		}
	}
}

func TestStrategy(t *testing.T) {
	if ClassDocument.Strategy() != StrategyNetworkFirst {
		t.Error("documents should be network-first")
	}
	if ClassScript.Strategy() != StrategyNetworkFirst {
		t.Error("script chunks should be network-first")
	}
	for _, c := range []Class{ClassStylesheet, ClassImage, ClassFont, ClassOther} {
		if c.Strategy() != StrategyCacheFirst {
			t.Errorf("%s should be cache-first", c)
		}
	}
}

func TestRuntimeCacheable(t *testing.T) {
	cacheable := []Class{ClassStylesheet, ClassImage, ClassFont}
	for _, c := range cacheable {
		if !c.RuntimeCacheable() {
			t.Errorf("%s should be runtime cacheable", c)
		}
	}
	for _, c := range []Class{ClassDocument, ClassScript, ClassOther} {
		if c.RuntimeCacheable() {
			t.Errorf("%s should not be runtime cacheable", c)
		}
	}
}
