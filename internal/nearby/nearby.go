// 包 nearby：机构的近邻查询，服务于"邻近地图"页面
package nearby

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"ipress-dash/internal/ingest"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mmcloughlin/geohash"
)

// MaxK 单次查询返回数量上限
const MaxK = 50

const (
	cellPrecision = 7
	cacheSize     = 4096
)

// Item：参与索引的点，Index 为数据集中机构的下标
type Item struct {
	Index int
	Lon   float64
	Lat   float64
}

type Hit struct {
	Index      int     `json:"index"`
	DistanceKm float64 `json:"distance_km"`
}

// 文档注释：近邻查询器
// 背景：地图拖动时相邻请求落在同一 geohash 网格；缓存按网格保存候选点，距离与排序按实际查询点重算。
// 约束：构建后只读（缓存除外），可并发使用；超过 maxKm 的点不返回。
type Finder struct {
	root  *kdNode
	size  int
	maxKm float64
	cache *expirable.LRU[string, []Item]
}

func New(items []Item, maxKm float64, ttl time.Duration) *Finder {
	cp := append([]Item(nil), items...)
	if maxKm <= 0 {
		maxKm = 50
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Finder{
		root:  buildKD(cp, 0),
		size:  len(cp),
		maxKm: maxKm,
		cache: expirable.NewLRU[string, []Item](cacheSize, nil, ttl),
	}
}

// FromDataset：从已转换为经纬度的数据集构建
func FromDataset(ds *ingest.Dataset, maxKm float64, ttl time.Duration) (*Finder, error) {
	if ds.Len() > 0 && !ds.Frame.IsGeographic() {
		return nil, fmt.Errorf("nearby index needs geographic coordinates, dataset is %s", ds.Frame)
	}
	items := make([]Item, 0, ds.Len())
	for i := range ds.Facilities {
		f := &ds.Facilities[i]
		items = append(items, Item{Index: i, Lon: f.Lon, Lat: f.Lat})
	}
	return New(items, maxKm, ttl), nil
}

func (f *Finder) Len() int { return f.size }

func (f *Finder) MaxKm() float64 { return f.maxKm }

// Nearest：距 (lat, lon) 最近的至多 k 个机构，按距离升序，距离相同按下标
func (f *Finder) Nearest(lat, lon float64, k int) []Hit {
	if k <= 0 {
		k = 1
	}
	if k > MaxK {
		k = MaxK
	}
	if f.root == nil {
		return []Hit{}
	}
	hits := make([]Hit, 0, k)
	for _, it := range f.candidates(lat, lon, k) {
		if d := haversine(lat, lon, it.Lat, it.Lon); d <= f.maxKm {
			hits = append(hits, Hit{Index: it.Index, DistanceKm: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm != hits[j].DistanceKm {
			return hits[i].DistanceKm < hits[j].DistanceKm
		}
		return hits[i].Index < hits[j].Index
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// candidates：网格内任意查询点的 k 近邻都在返回集合中
// 约束：设网格中心为 c、中心到网格角的最大距离为 δ，则查询点的第 k 近距离不超过 d_k(c)+δ，
// 因此候选半径取 min(d_k(c)+2δ, maxKm+δ)。
func (f *Finder) candidates(lat, lon float64, k int) []Item {
	cell := geohash.EncodeWithPrecision(lat, lon, cellPrecision)
	key := cell + ":" + strconv.Itoa(k)
	if v, ok := f.cache.Get(key); ok {
		return v
	}
	box := geohash.BoundingBox(cell)
	cLat, cLon := box.Center()
	delta := 0.0
	for _, corner := range [][2]float64{{box.MinLat, box.MinLng}, {box.MinLat, box.MaxLng}, {box.MaxLat, box.MinLng}, {box.MaxLat, box.MaxLng}} {
		delta = math.Max(delta, haversine(cLat, cLon, corner[0], corner[1]))
	}
	radius := f.maxKm + delta
	if near := kNearest(f.root, cLat, cLon, k); len(near) == k {
		radius = math.Min(radius, near[k-1].DistanceKm+2*delta)
	}
	out := withinRadius(f.root, cLat, cLon, radius+1e-9)
	f.cache.Add(key, out)
	return out
}
