package catalog

import (
	"github.com/pkg/errors"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var (
	// ErrNotFound 请求的数据源/数据集/表不在元数据中
	ErrNotFound = errors.New("not found in catalog")

	// ErrNoConnector 数据集没有可用的数据访问连接
	ErrNoConnector = errors.New("no connector for dataset")
)

// notFound 带相似名称提示的 ErrNotFound
func notFound(kind, id string, candidates []string) error {
	if s := suggest(id, candidates); s != "" {
		return errors.Wrapf(ErrNotFound, "%s %q (did you mean %q?)", kind, id, s)
	}
	return errors.Wrapf(ErrNotFound, "%s %q", kind, id)
}

// suggest 编辑距离最近的候选，差太远时返回空
func suggest(name string, candidates []string) string {
	best := ""
	bestDistance := -1
	for _, c := range candidates {
		d := levenshtein.DistanceForStrings([]rune(name), []rune(c), levenshtein.DefaultOptions)
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = c, d
		}
	}

	limit := len([]rune(name)) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDistance < 0 || bestDistance > limit {
		return ""
	}
	return best
}
