package live

import "github.com/onnwee/livewatch/guild"

// project derives the guild's visible set. ev is nil when the member scan did
// not run for the guild this tick. Requires r.mu.
func (r *Reconciler) project(cfg guild.Config, gs *groupState, ev *Evidence, valid map[Key]struct{}, pollFailed bool) {
	confirmed := make(map[Key]struct{})
	if ev != nil {
		for k, e := range ev.ByKey {
			rec := gs.records[k]
			if rec == nil {
				rec = &GroupRecord{}
				gs.records[k] = rec
			}
			rec.DisplayName = e.Member.DisplayName
			rec.Avatar = e.Member.AvatarURL
			rec.MemberID = e.Member.ID
			rec.HasStreamerRole = true
			confirmed[k] = struct{}{}
		}
	}

	for _, name := range cfg.Streamers {
		k := KeyOf(name)
		if _, ok := confirmed[k]; ok {
			continue
		}
		if _, ok := valid[k]; !ok {
			continue
		}
		g := r.global[k]
		if g == nil || !cfg.AllowsCategory(g.Game) {
			continue
		}
		if _, ok := gs.records[k]; !ok {
			gs.records[k] = &GroupRecord{DisplayName: name}
		}
		confirmed[k] = struct{}{}
	}

	if pollFailed {
		return
	}
	for k := range gs.records {
		if _, ok := confirmed[k]; ok {
			continue
		}
		// Role-observed entries survive ticks that skipped the member scan.
		if g, ok := r.global[k]; ok && ev == nil && !g.FromAPI {
			continue
		}
		delete(gs.records, k)
	}
}
