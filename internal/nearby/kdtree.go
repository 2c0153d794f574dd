package nearby

import (
	"math"
	"sort"
)

// 文档注释：KD-Tree 最近邻（二维经纬）
// 约束：按经度/纬度交替分割；查询返回按距离升序的至多 k 个点。
type kdNode struct {
	it Item
	ax int // 0:lon,1:lat
	l  *kdNode
	r  *kdNode
}

func buildKD(items []Item, depth int) *kdNode {
	if len(items) == 0 {
		return nil
	}
	ax := depth % 2
	mid := len(items) / 2
	selectNth(items, mid, ax)
	node := &kdNode{it: items[mid], ax: ax}
	node.l = buildKD(items[:mid], depth+1)
	node.r = buildKD(items[mid+1:], depth+1)
	return node
}

// 原地 nth 元素选择
func selectNth(a []Item, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []Item, lo, hi, pivot, ax int) int {
	pv := a[pivot]
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if axisValue(a[j], ax) < axisValue(pv, ax) {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

func axisValue(it Item, ax int) float64 {
	if ax == 0 {
		return it.Lon
	}
	return it.Lat
}

const kmPerDegree = 111.19

// kNearest：维护按距离升序的候选集合
func kNearest(root *kdNode, lat, lon float64, k int) []Hit {
	var best []Hit
	worst := func() float64 {
		if len(best) < k {
			return math.MaxFloat64
		}
		return best[len(best)-1].DistanceKm
	}
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		d := haversine(lat, lon, n.it.Lat, n.it.Lon)
		if d < worst() {
			best = append(best, Hit{Index: n.it.Index, DistanceKm: d})
			sort.SliceStable(best, func(i, j int) bool { return best[i].DistanceKm < best[j].DistanceKm })
			if len(best) > k {
				best = best[:k]
			}
		}
		var key, q float64
		if n.ax == 0 {
			key, q = lon, n.it.Lon
		} else {
			key, q = lat, n.it.Lat
		}
		first, second := n.l, n.r
		if key >= q {
			first, second = n.r, n.l
		}
		dfs(first)
		if planeDistanceKm(math.Abs(key-q), n.ax, lat, worst()) < worst() {
			dfs(second)
		}
	}
	dfs(root)
	return best
}

// withinRadius：与 (lat, lon) 距离不超过 radius 千米的全部点，顺序不定
func withinRadius(root *kdNode, lat, lon, radius float64) []Item {
	var out []Item
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		if haversine(lat, lon, n.it.Lat, n.it.Lon) <= radius {
			out = append(out, n.it)
		}
		key, q := lon, n.it.Lon
		if n.ax == 1 {
			key, q = lat, n.it.Lat
		}
		first, second := n.l, n.r
		if key >= q {
			first, second = n.r, n.l
		}
		dfs(first)
		if planeDistanceKm(math.Abs(key-q), n.ax, lat, radius) <= radius {
			dfs(second)
		}
	}
	dfs(root)
	return out
}

// planeDistanceKm：分割平面到查询点距离的保守下界
// 经度方向按候选范围内最高纬度的余弦缩放。
func planeDistanceKm(deg float64, ax int, lat, radius float64) float64 {
	if ax == 1 {
		return deg * kmPerDegree
	}
	if radius == math.MaxFloat64 {
		return 0
	}
	maxLat := math.Abs(lat) + radius/kmPerDegree
	if maxLat >= 89 {
		return 0
	}
	return deg * kmPerDegree * math.Cos(maxLat*math.Pi/180)
}

// 球面距离（Haversine），返回千米
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
