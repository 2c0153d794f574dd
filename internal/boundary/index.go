package boundary

import (
	"sort"

	"github.com/dhconnelly/rtreego"
)

const minExtent = 1e-9

// Bounds 使 District 满足 rtreego.Spatial
func (d *District) Bounds() rtreego.Rect {
	if d.BBox == nil {
		r, _ := rtreego.NewRect(rtreego.Point{0, 0}, []float64{minExtent, minExtent})
		return r
	}
	w := d.BBox.Max(0) - d.BBox.Min(0)
	h := d.BBox.Max(1) - d.BBox.Min(1)
	if w < minExtent {
		w = minExtent
	}
	if h < minExtent {
		h = minExtent
	}
	r, _ := rtreego.NewRect(rtreego.Point{d.BBox.Min(0), d.BBox.Min(1)}, []float64{w, h})
	return r
}

// 文档注释：区边界的包围盒索引
// 背景：全国约 1,900 个区，逐个做点入多边形判定代价高；先用 R 树取包围盒候选，再精确判定。
type Index struct {
	tree *rtreego.Rtree
	set  *Set
}

func NewIndex(set *Set) *Index {
	tree := rtreego.NewTree(2, 25, 50)
	for _, d := range set.Districts {
		if d.BBox == nil {
			continue
		}
		tree.Insert(d)
	}
	return &Index{tree: tree, set: set}
}

// Candidates：包围盒包含该点的区，按输入顺序排列
func (ix *Index) Candidates(x, y float64) []*District {
	hits := ix.tree.SearchIntersect(rtreego.Point{x, y}.ToRect(minExtent))
	out := make([]*District, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*District))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Locate：返回包含该点的第一个区（输入顺序），无则返回 nil
func (ix *Index) Locate(x, y float64) *District {
	for _, d := range ix.Candidates(x, y) {
		if d.Contains(x, y) {
			return d
		}
	}
	return nil
}
