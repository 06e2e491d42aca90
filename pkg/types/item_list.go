package types

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

type ItemId = uint32

// ItemList is a set of content item ids backed by a roaring bitmap.
type ItemList struct {
	bm *roaring.Bitmap
}

func NewItemList(ids ...ItemId) *ItemList {
	return &ItemList{bm: roaring.BitmapOf(ids...)}
}

func (i *ItemList) bitmap() *roaring.Bitmap {
	if i.bm == nil {
		i.bm = roaring.New()
	}
	return i.bm
}

func (i *ItemList) AddId(id ItemId) {
	i.bitmap().Add(id)
}

func (i *ItemList) Contains(id ItemId) bool {
	if i == nil || i.bm == nil {
		return false
	}
	return i.bm.Contains(id)
}

func (i *ItemList) Len() int {
	if i == nil || i.bm == nil {
		return 0
	}
	return int(i.bm.GetCardinality())
}

func (i *ItemList) Merge(other *ItemList) {
	if other == nil || other.bm == nil {
		return
	}
	i.bitmap().Or(other.bm)
}

func (i *ItemList) Intersect(other *ItemList) {
	if other == nil || other.bm == nil {
		i.bm = roaring.New()
		return
	}
	i.bitmap().And(other.bm)
}

func (i *ItemList) Exclude(other *ItemList) {
	if other == nil || other.bm == nil {
		return
	}
	i.bitmap().AndNot(other.bm)
}

// IntersectionLen counts ids present in both lists without allocating.
func (i *ItemList) IntersectionLen(other *ItemList) int {
	if i == nil || other == nil || i.bm == nil || other.bm == nil {
		return 0
	}
	return int(i.bm.AndCardinality(other.bm))
}

func (i *ItemList) Clone() *ItemList {
	if i == nil || i.bm == nil {
		return NewItemList()
	}
	return &ItemList{bm: i.bm.Clone()}
}

func (i *ItemList) Ids() []ItemId {
	if i == nil || i.bm == nil {
		return []ItemId{}
	}
	return i.bm.ToArray()
}

func (i *ItemList) All() iter.Seq[ItemId] {
	return func(yield func(ItemId) bool) {
		if i == nil || i.bm == nil {
			return
		}
		it := i.bm.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}
