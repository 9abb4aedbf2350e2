package seed

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
)

var (
	titles = []string{
		normalize.TitleChief, normalize.TitleAssociateChief, normalize.TitleAttending,
		normalize.TitleResident, normalize.TitleProfessor, normalize.TitleAssociateProf,
	}
	regions     = []string{"北京", "上海", "广东", "浙江", "四川", "湖北", "江苏"}
	departments = []string{"内分泌科", "心内科", "消化科", "呼吸科", "神经内科", "皮肤科", "妇科", "儿科"}
	agencies    = []string{"星河传媒", "医声MCN", "健康说", ""}
	surnames    = []string{"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴"}
)

// Audience bands; a doctor is drawn from one band so the catalog covers
// the head, middle and tail of the ranking.
type band struct {
	minFans, maxFans int64
	likeRate         float64
	weight           int
}

var bands = []band{
	{minFans: 1_000_000, maxFans: 8_000_000, likeRate: 12, weight: 1},
	{minFans: 100_000, maxFans: 1_000_000, likeRate: 8, weight: 3},
	{minFans: 5_000, maxFans: 100_000, likeRate: 5, weight: 5},
	{minFans: 0, maxFans: 5_000, likeRate: 2, weight: 1},
}

// Generator produces a reproducible synthetic catalog.
type Generator struct {
	src *rand.ChaCha8
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed uint64) *Generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	return &Generator{src: src, rng: rand.New(src)}
}

// Doctors generates n doctors with unique ids.
func (g *Generator) Doctors(n int) ([]model.Doctor, error) {
	out := make([]model.Doctor, 0, n)
	for i := 0; i < n; i++ {
		d, err := g.doctor(i)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (g *Generator) doctor(i int) (model.Doctor, error) {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		return model.Doctor{}, fmt.Errorf("doctor id: %w", err)
	}

	b := g.band()
	fans := b.minFans + g.rng.Int64N(b.maxFans-b.minFans+1)
	works := 20 + g.rng.Int64N(400)
	likes := int64(float64(fans) * b.likeRate * (0.5 + g.rng.Float64()))

	d := model.Doctor{
		ID:             fmt.Sprintf("doc_%04d_%s", i, id.String()[:8]),
		Name:           pick(g.rng, surnames) + "医生" + fmt.Sprint(i),
		Title:          pick(g.rng, titles),
		Region:         pick(g.rng, regions),
		Department:     pick(g.rng, departments),
		AgencyName:     pick(g.rng, agencies),
		TotalFollowers: fans,
		TotalLikes:     likes,
		TotalWorks:     works,
	}

	// Roughly one doctor in ten has no price quote and no recent activity.
	if g.rng.IntN(10) == 0 {
		return d, nil
	}

	price := float64(500 + g.rng.IntN(50)*100)
	d.Price = &price
	play := int64(float64(fans) * (0.05 + 0.3*g.rng.Float64()))
	d.AvgPlayCount = &play

	// Rolling windows are nested: 7d <= 15d <= 30d.
	var prev model.WindowCounters
	for _, days := range model.Windows() {
		share := float64(days) / 365
		w := model.WindowCounters{
			Likes:     grow(g.rng, prev.Likes, int64(float64(likes)*share)),
			Followers: grow(g.rng, prev.Followers, int64(float64(fans)*share*0.2)),
			Shares:    grow(g.rng, prev.Shares, int64(float64(likes)*share*0.05)),
			Comments:  grow(g.rng, prev.Comments, int64(float64(likes)*share*0.1)),
			Works:     grow(g.rng, prev.Works, int64(days)/3),
		}
		setWindow(&d, days, w)
		prev = w
	}

	if g.rng.IntN(2) == 0 {
		d.PerformanceScore = g.rating()
		d.AffinityScore = g.rating()
		d.EditingScore = g.rating()
		d.VideoQualityScore = g.rating()
	}
	return d, nil
}

func (g *Generator) band() band {
	total := 0
	for _, b := range bands {
		total += b.weight
	}
	n := g.rng.IntN(total)
	for _, b := range bands {
		if n < b.weight {
			return b
		}
		n -= b.weight
	}
	return bands[len(bands)-1]
}

func (g *Generator) rating() *float64 {
	v := float64(g.rng.IntN(101)) / 10
	return &v
}

func pick(rng *rand.Rand, xs []string) string {
	return xs[rng.IntN(len(xs))]
}

// grow returns a counter of at least prev, near target.
func grow(rng *rand.Rand, prev *int64, target int64) *int64 {
	v := target + rng.Int64N(target/4+1)
	if prev != nil && v < *prev {
		v = *prev
	}
	return &v
}

func setWindow(d *model.Doctor, days model.Days, w model.WindowCounters) {
	switch days {
	case model.Days7:
		d.Likes7d, d.Followers7d, d.Shares7d, d.Comments7d, d.Works7d = w.Likes, w.Followers, w.Shares, w.Comments, w.Works
	case model.Days15:
		d.Likes15d, d.Followers15d, d.Shares15d, d.Comments15d, d.Works15d = w.Likes, w.Followers, w.Shares, w.Comments, w.Works
	case model.Days30:
		d.Likes30d, d.Followers30d, d.Shares30d, d.Comments30d, d.Works30d = w.Likes, w.Followers, w.Shares, w.Comments, w.Works
	}
}
