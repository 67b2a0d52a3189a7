package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"library-circulation/library"
)

// profileRequest is what members may change about themselves.
type profileRequest struct {
	Phone   *string `json:"phone_number"`
	Address *string `json:"address"`
}

func (h *handler) myProfile(c echo.Context) error {
	m, err := h.mgr.Members.GetProfile(c.Request().Context(), memberID(c))
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, m, "")
}

func (h *handler) updateMyProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	m, err := h.mgr.Members.UpdateProfile(c.Request().Context(), memberID(c), library.MemberPatch{
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, m, "Profile updated")
}

func (h *handler) createMember(c echo.Context) error {
	var in library.MemberInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	m, err := h.mgr.Members.EnsureProfile(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return Success(c, http.StatusCreated, m, "Member profile ready")
}

func (h *handler) listMembers(c echo.Context) error {
	list, err := h.mgr.Members.ListMembers(c.Request().Context())
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, list, "")
}

func (h *handler) updateMember(c echo.Context) error {
	var patch library.MemberPatch
	if err := c.Bind(&patch); err != nil {
		return err
	}
	m, err := h.mgr.Members.UpdateProfile(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, m, "Member updated")
}

func (h *handler) deleteMember(c echo.Context) error {
	if err := h.mgr.Members.DeleteProfile(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return Success(c, http.StatusOK, nil, "Member deleted")
}

func (h *handler) stats(c echo.Context) error {
	s, err := h.mgr.Stats.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return Success(c, http.StatusOK, s, "")
}
