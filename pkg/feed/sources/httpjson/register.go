package httpjson

import (
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
)

func init() {
	sources.Register("httpjson", New)
}
